package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/HVLAB-SJ/hv-lab-app-sub002/client"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/record"
)

const FirestoreAPI = "https://firestore.googleapis.com/v1"

// DocumentsURL is the REST root of a database's documents.
func DocumentsURL(apiBase, project, database string) string {
	if apiBase == "" {
		apiBase = FirestoreAPI
	}
	if database == "" {
		database = "(default)"
	}
	return fmt.Sprintf("%s/projects/%s/databases/%s/documents", apiBase, project, database)
}

type FirestoreConfig struct {
	// Client is bound to DocumentsURL with a datastore-scoped token source.
	Client *client.Client
	Budget int
	Logger *slog.Logger
}

// Firestore writes through the REST API with delete-then-create, so the
// stored document is exactly the record that was sent.
type Firestore struct {
	client *client.Client
	budget int
	logger *slog.Logger
}

var (
	_ Writer = &Firestore{}
	_ Getter = &Firestore{}
)

func NewFirestore(cfg FirestoreConfig) (*Firestore, error) {
	if cfg.Client == nil {
		return nil, ErrClientMissing
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	budget := cfg.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Firestore{
		client: cfg.Client,
		budget: budget,
		logger: cfg.Logger.WithGroup("firestore"),
	}, nil
}

func (f *Firestore) Budget() int {
	return f.budget
}

func documentPath(collection string, key record.Key) string {
	return url.PathEscape(collection) + "/" + url.PathEscape(key.String())
}

func (f *Firestore) Write(ctx context.Context, collection string, key record.Key, rec *record.Record) error {
	if err := checkTarget(collection, key); err != nil {
		return err
	}
	body, err := measure(collection, key, rec, f.budget)
	if err != nil {
		return err
	}

	err = f.client.Exec(ctx, client.Request{
		Method: http.MethodDelete,
		Path:   documentPath(collection, key),
	})
	if err != nil && !client.IsNotFound(err) {
		return writeError("delete", err)
	}

	err = f.client.Exec(ctx, client.Request{
		Method:      http.MethodPost,
		Path:        url.PathEscape(collection),
		Query:       url.Values{"documentId": {key.String()}},
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return writeError("create", err)
	}

	f.logger.Debug("document written", "collection", collection, "key", key, "bytes", len(body))
	return nil
}

func (f *Firestore) Get(ctx context.Context, collection string, key record.Key) (*record.Record, error) {
	if err := checkTarget(collection, key); err != nil {
		return nil, err
	}
	body, err := f.client.Do(ctx, client.Request{
		Method: http.MethodGet,
		Path:   documentPath(collection, key),
	})
	if err != nil {
		if client.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, key)
		}
		return nil, writeError("get", err)
	}
	doc, err := record.Decode(body)
	if err != nil {
		return nil, err
	}
	return Decode(doc)
}

func writeError(op string, err error) error {
	werr := &WriteError{Op: op, Err: err}
	var se *client.StatusError
	if errors.As(err, &se) {
		werr.Status = se.StatusCode
		werr.Body = se.Body
	}
	return werr
}
