package migrate

import (
	"errors"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/client"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/docstore"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/record"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/storage"
)

// State is where an item is in its pass.
type State string

const (
	StatePending       State = "pending"
	StateClassified    State = "classified"
	StateBlobsUploaded State = "blobs_uploaded"
	StateWritten       State = "written"
	StateFailed        State = "failed"

	// StateNotAttempted marks items left over when a run is cancelled.
	StateNotAttempted State = "not_attempted"
)

// Reason classifies why an item failed, or why a written item is degraded.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonUpload       Reason = "upload"
	ReasonSizeExceeded Reason = "size_exceeded"
	ReasonWrite        Reason = "write"
	ReasonNetwork      Reason = "network"
	ReasonRead         Reason = "read"
	ReasonInvalid      Reason = "invalid"
)

// reasonFor maps err to the taxonomy. fallback names the phase the error
// came from and is used when nothing more specific matches.
func reasonFor(fallback Reason, err error) Reason {
	var ve *record.ValidationError
	if errors.As(err, &ve) {
		return ReasonInvalid
	}
	var se *docstore.SizeExceeded
	if errors.As(err, &se) {
		return ReasonSizeExceeded
	}
	if client.IsNetwork(err) {
		return ReasonNetwork
	}
	var ue *storage.UploadError
	if errors.As(err, &ue) {
		return ReasonUpload
	}
	var we *docstore.WriteError
	if errors.As(err, &we) {
		return ReasonWrite
	}
	return fallback
}
