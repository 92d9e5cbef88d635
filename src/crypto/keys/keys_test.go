package keys

import (
	"bytes"
	"os"
	"path"
	"testing"
)

func TestSimpleKeyfile(t *testing.T) {
	dir := t.TempDir()

	simpleKeyfile := NewSimpleKeyfile(path.Join(dir, "priv_key"))

	// Try a read, should get nothing
	key, err := simpleKeyfile.ReadKey()
	if err == nil {
		t.Fatalf("ReadKey should generate an error")
	}
	if key != nil {
		t.Fatalf("key is not nil")
	}

	for _, kt := range []Type{Secp256k1, Ed25519, Dilithium3} {
		key, err := GenerateKey(kt)
		if err != nil {
			t.Fatalf("err: %v", err)
		}

		if err := simpleKeyfile.WriteKey(key); err != nil {
			t.Fatalf("err: %v", err)
		}

		nKey, err := simpleKeyfile.ReadKey()
		if err != nil {
			t.Fatalf("%s: err: %v", kt, err)
		}

		if nKey.Type() != kt {
			t.Fatalf("%s: read key has type %s", kt, nKey.Type())
		}

		if !bytes.Equal(nKey.Public(), key.Public()) {
			t.Fatalf("%s: keys do not match", kt)
		}
	}
}

func TestFilePermissions(t *testing.T) {
	dir := t.TempDir()

	key, _ := GenerateKey(Secp256k1)
	good := NewSimpleKeyfile(path.Join(dir, "reference"))
	if err := good.WriteKey(key); err != nil {
		t.Fatal(err)
	}
	dump, _ := os.ReadFile(path.Join(dir, "reference"))

	badKeyPath := path.Join(dir, "priv_key_bad")

	// random selection of permissions that should not be accepted.
	shouldErr := []os.FileMode{
		0777, 0766, 0744,
		0677, 0666, 0644,
		0477, 0466, 0444,
	}

	for _, fm := range shouldErr {
		os.Remove(badKeyPath)
		os.WriteFile(badKeyPath, dump, fm)
		os.Chmod(badKeyPath, fm)

		if _, err := NewSimpleKeyfile(badKeyPath).ReadKey(); err == nil {
			t.Fatalf("%o || key file should return permissions error", fm)
		}
	}

	goodKeyPath := path.Join(dir, "priv_key_good")

	shouldNotErr := []os.FileMode{
		0700, 0600, 0500, 0400,
	}

	for _, fm := range shouldNotErr {
		os.Remove(goodKeyPath)
		os.WriteFile(goodKeyPath, dump, fm)
		os.Chmod(goodKeyPath, fm)

		if _, err := NewSimpleKeyfile(goodKeyPath).ReadKey(); err != nil {
			t.Fatalf("%o || key file should not return error. Got %v", fm, err)
		}
	}
}

func TestSignVerify(t *testing.T) {
	msg := []byte("J'aime mieux forger mon ame que la meubler")

	for _, kt := range []Type{Secp256k1, Ed25519, Dilithium3} {
		key, err := GenerateKey(kt)
		if err != nil {
			t.Fatal(err)
		}

		sig, err := key.Sign(msg)
		if err != nil {
			t.Fatal(err)
		}

		if !Verify(key.Public(), msg, sig) {
			t.Fatalf("%s: signature should verify", kt)
		}

		if Verify(key.Public(), append([]byte("x"), msg...), sig) {
			t.Fatalf("%s: signature should not verify a different payload", kt)
		}

		other, _ := GenerateKey(kt)
		if Verify(other.Public(), msg, sig) {
			t.Fatalf("%s: signature should not verify under another key", kt)
		}
	}
}

func TestEd25519FromSeedIsDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)

	a, err := NewEd25519KeyFromSeed(seed)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := NewEd25519KeyFromSeed(seed)

	if !bytes.Equal(a.Public(), b.Public()) {
		t.Fatalf("same seed should give the same key")
	}
}

func TestVerifyRejectsUnknownType(t *testing.T) {
	if Verify([]byte{42, 1, 2, 3}, []byte("a"), []byte("b")) {
		t.Fatalf("unknown key type should not verify")
	}
	if Verify(nil, []byte("a"), []byte("b")) {
		t.Fatalf("empty key should not verify")
	}
}
