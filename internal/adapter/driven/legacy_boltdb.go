package driven

import (
	"errors"

	"go.etcd.io/bbolt"
)

// legacyBuckets were written by releases that managed channels, probes,
// stream sessions and subscriptions in the same database file.
var legacyBuckets = []string{"channels", "probes", "streams", "subscriptions"}

// PurgeLegacyBuckets drops buckets left behind by older releases and returns
// the names it removed.
func PurgeLegacyBuckets(db *bbolt.DB) ([]string, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}

	var removed []string
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range legacyBuckets {
			err := tx.DeleteBucket([]byte(name))
			if errors.Is(err, bbolt.ErrBucketNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			removed = append(removed, name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
