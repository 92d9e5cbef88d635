package store

import (
	"github.com/dgraph-io/badger"
	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/identity"
	"github.com/sirupsen/logrus"
)

const (
	profilePrefix  = "profile/"
	redirectPrefix = "redirect/"
	appPrefix      = "app/"
)

// BadgerStore implements Store on top of a Badger database. The same database
// also backs the per-application key-value stores returned by KV.
type BadgerStore struct {
	db     *badger.DB
	path   string
	logger *logrus.Entry
}

// NewBadgerStore opens, or creates, the database in path.
func NewBadgerStore(path string, logger *logrus.Entry) (*BadgerStore, error) {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	opts.Logger = logger.WithField("component", "badger")

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{
		db:     handle,
		path:   path,
		logger: logger,
	}, nil
}

// Path ...
func (s *BadgerStore) Path() string {
	return s.path
}

func profileKey(id identity.ProfileID) []byte {
	return append([]byte(profilePrefix), id...)
}

func redirectKey(id identity.ProfileID) []byte {
	return append([]byte(redirectPrefix), id...)
}

// CreateProfile ...
func (s *BadgerStore) CreateProfile(own identity.OwnProfile) error {
	val, err := encode(own)
	if err != nil {
		return err
	}
	key := profileKey(own.ID())

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return common.NewStoreErr("Profile", common.KeyAlreadyExists, own.ID().String())
		}
		if !isDBKeyNotFound(err) {
			return err
		}
		return txn.Set(key, val)
	})
}

// SetProfile ...
func (s *BadgerStore) SetProfile(own identity.OwnProfile) error {
	val, err := encode(own)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(profileKey(own.ID()), val)
	})
}

// GetProfile ...
func (s *BadgerStore) GetProfile(id identity.ProfileID) (identity.OwnProfile, error) {
	var own identity.OwnProfile
	if err := s.get(profileKey(id), &own); err != nil {
		return identity.OwnProfile{}, mapError(err, "Profile", id.String())
	}
	return own, nil
}

// DeleteProfile ...
func (s *BadgerStore) DeleteProfile(id identity.ProfileID) error {
	key := profileKey(id)
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	return mapError(err, "Profile", id.String())
}

// ProfileIDs scans the profile prefix without fetching values.
func (s *BadgerStore) ProfileIDs() ([]identity.ProfileID, error) {
	res := []identity.ProfileID{}
	prefix := []byte(profilePrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			res = append(res, identity.ProfileID(key[len(prefix):]))
		}
		return nil
	})

	return res, err
}

// SetRedirect ...
func (s *BadgerStore) SetRedirect(id identity.ProfileID, newHome identity.Profile) error {
	val, err := encode(newHome)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(redirectKey(id), val)
	})
}

// GetRedirect ...
func (s *BadgerStore) GetRedirect(id identity.ProfileID) (identity.Profile, error) {
	var p identity.Profile
	if err := s.get(redirectKey(id), &p); err != nil {
		return identity.Profile{}, mapError(err, "Redirect", id.String())
	}
	return p, nil
}

// KV returns the key-value store of an application, namespaced inside the
// same database.
func (s *BadgerStore) KV(appID string) (KV, error) {
	return &badgerKV{
		db:     s.db,
		prefix: appPrefix + appID + "/",
	}, nil
}

// Close ...
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) get(key []byte, v interface{}) error {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return err
	}
	if err := decode(raw, v); err != nil {
		s.logger.WithError(err).WithField("key", string(key)).Error("Decoding stored value")
		return common.NewStoreErr("Value", common.Corrupted, string(key))
	}
	return nil
}

func isDBKeyNotFound(err error) bool {
	return err == badger.ErrKeyNotFound
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return common.NewStoreErr(name, common.KeyNotFound, key)
		}
	}
	return err
}
