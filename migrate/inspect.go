package migrate

import (
	"github.com/HVLAB-SJ/hv-lab-app-sub002/blob"
	"github.com/HVLAB-SJ/hv-lab-app-sub002/record"
)

// SiteReport describes one string value of a record.
type SiteReport struct {
	Site   string
	Class  blob.Class
	Length int
}

// Inspect classifies every string site of rec the way a rewrite would see
// it.
func Inspect(rec *record.Record, threshold int) []SiteReport {
	var out []SiteReport
	walk(rec, func(s site) {
		str, ok := s.Value.(string)
		if !ok {
			return
		}
		out = append(out, SiteReport{
			Site:   s.String(),
			Class:  blob.Classify(str, threshold),
			Length: len(str),
		})
	})
	return out
}
