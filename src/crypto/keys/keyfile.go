package keys

import (
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
)

// SimpleKeyfile reads and writes private keys from/to unencrypted files. The
// file contains the key type and a hex dump of the raw key, separated by a
// colon, eg. "ed25519:9f3c...".
type SimpleKeyfile struct {
	l       sync.Mutex
	keyfile string
}

// NewSimpleKeyfile instantiates a new SimpleKeyfile with an underlying file
func NewSimpleKeyfile(keyfile string) *SimpleKeyfile {
	simpleKeyfile := &SimpleKeyfile{
		keyfile: keyfile,
	}

	return simpleKeyfile
}

// CheckFileInfo verifies that the file exists and has user permissions only.
func (k *SimpleKeyfile) CheckFileInfo() error {
	info, err := os.Stat(k.keyfile)
	if err != nil {
		return err
	}

	perm := info.Mode().Perm()

	// build 000111111 mask
	var nonUserMask os.FileMode = (1 << 6) - 1

	if perm&nonUserMask != 0 {
		return fmt.Errorf("key file permissions should exclude 'groups' and 'others'. Got %o", perm)
	}

	return nil
}

// ReadKey reads a key written by WriteKey.
func (k *SimpleKeyfile) ReadKey() (PrivateKey, error) {
	k.l.Lock()
	defer k.l.Unlock()

	if err := k.CheckFileInfo(); err != nil {
		return nil, err
	}

	buf, err := os.ReadFile(k.keyfile)
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(strings.TrimSpace(string(buf)), ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed key file %s", k.keyfile)
	}

	t, err := ParseType(parts[0])
	if err != nil {
		return nil, err
	}

	raw, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, err
	}

	return ParsePrivateKey(t, raw)
}

// WriteKey creates the parent directory if needed and writes the key with
// user-only permissions.
func (k *SimpleKeyfile) WriteKey(key PrivateKey) error {
	k.l.Lock()
	defer k.l.Unlock()

	dump := fmt.Sprintf("%s:%s", key.Type(), hex.EncodeToString(key.Bytes()))

	if err := os.MkdirAll(path.Dir(k.keyfile), 0700); err != nil {
		return err
	}

	return os.WriteFile(k.keyfile, []byte(dump), 0600)
}

// ReadOrGenerate returns the key stored in the file, or generates a key of the
// given type and writes it when the file does not exist yet.
func (k *SimpleKeyfile) ReadOrGenerate(t Type) (PrivateKey, bool, error) {
	if _, err := os.Stat(k.keyfile); os.IsNotExist(err) {
		key, err := GenerateKey(t)
		if err != nil {
			return nil, false, err
		}
		if err := k.WriteKey(key); err != nil {
			return nil, false, err
		}
		return key, true, nil
	}

	key, err := k.ReadKey()
	return key, false, err
}
