package catalog

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"catalogd.dev/jx"
)

// sweepExpired removes records whose lastheardfrom predates the
// configured lifetime. Suppressed for the first Lifetime seconds after
// startup so records that merely predate a restart aren't collected,
// per spec.md §3's lifecycle note.
func (s *Server) sweepExpired() {
	if time.Since(s.startedAt) < s.cfg.Lifetime {
		return
	}
	now := time.Now()

	type staleRecord struct {
		key         string
		lastHeardAt time.Time
	}
	var stale []staleRecord
	s.table.Range(func(key string, rec *jx.Value) {
		lh, ok := rec.Get("lastheardfrom")
		if !ok || lh.Kind != jx.KindInt {
			return
		}
		lifetime := s.cfg.Lifetime
		if lt, ok := rec.Get("lifetime"); ok && lt.Kind == jx.KindInt && lt.Int > 0 {
			if recLifetime := time.Duration(lt.Int) * time.Second; recLifetime < lifetime {
				lifetime = recLifetime
			}
		}
		if lh.Int < now.Add(-lifetime).Unix() {
			stale = append(stale, staleRecord{key: key, lastHeardAt: time.Unix(lh.Int, 0)})
		}
	})

	for _, rec := range stale {
		if _, err := s.table.Remove(rec.key); err != nil {
			s.log.WithError(err).Warn("catalog: expiry remove failed")
			continue
		}
		s.log.WithFields(logrus.Fields{
			"key":             rec.key,
			"last_heard_from": humanize.Time(rec.lastHeardAt),
		}).Debug("catalog: expired stale record")
		if s.metrics != nil {
			s.metrics.ExpiredTotal.Inc()
		}
	}
}
