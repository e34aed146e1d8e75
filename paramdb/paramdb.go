// Package paramdb keeps interpreter parameters in a bbolt database, as an
// alternative to a parameter file when several programs share one machine.
package paramdb

import (
	"fmt"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bucketParams = "params"
)

var initDB = map[string]func(tx *bolt.Tx) error{
	"initialize parameter table": func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketParams))
		return err
	},
}

// DB is a parameter store backed by a bbolt file.
type DB struct {
	db *bolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*DB, error) {
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for name, fn := range initDB {
			if err := fn(tx); err != nil {
				return fmt.Errorf("failed to %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

func (pdb *DB) Close() error {
	return pdb.db.Close()
}

func marshalValue(val float64) []byte {
	return []byte(strconv.FormatFloat(val, 'f', -1, 64))
}

func unmarshalValue(data []byte) (float64, error) {
	return strconv.ParseFloat(string(data), 64)
}

// Load returns every stored parameter.
func (pdb *DB) Load() (map[int]float64, error) {
	vals := map[int]float64{}
	err := pdb.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketParams))
		return b.ForEach(func(k, v []byte) error {
			num, err := strconv.Atoi(string(k))
			if err != nil {
				return fmt.Errorf("bad parameter number: %q", k)
			}
			val, err := unmarshalValue(v)
			if err != nil {
				return fmt.Errorf("#%d: bad value: %q", num, v)
			}
			vals[num] = val
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return vals, nil
}

// Save replaces the stored parameters with vals in one transaction.
func (pdb *DB) Save(vals map[int]float64) error {
	return pdb.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketParams)); err != nil {
			return err
		}
		b, err := tx.CreateBucket([]byte(bucketParams))
		if err != nil {
			return err
		}
		for num, val := range vals {
			if err := b.Put([]byte(strconv.Itoa(num)), marshalValue(val)); err != nil {
				return err
			}
		}
		return nil
	})
}
