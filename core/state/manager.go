package state

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"vedex/storage"
)

var (
	errTxActive   = errors.New("state: transaction already active")
	errNoTx       = errors.New("state: no active transaction")
	errEmptyKey   = errors.New("kv: key must not be empty")
	errNilBackend = errors.New("state: database not configured")
)

// Manager provides RLP-encoded key/value access to protocol state. Writes
// made between Begin and Commit are buffered in an overlay so that a failed
// call can be discarded with Rollback without touching the database.
type Manager struct {
	db storage.Database

	mu      sync.RWMutex
	inTx    bool
	overlay map[string][]byte
	deleted map[string]struct{}
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// Begin opens a write overlay. Nested transactions are not supported.
func (m *Manager) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inTx {
		return errTxActive
	}
	m.inTx = true
	m.overlay = make(map[string][]byte)
	m.deleted = make(map[string]struct{})
	return nil
}

// Commit flushes the overlay to the database in a single batch.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.inTx {
		return errNoTx
	}
	if m.db == nil {
		return errNilBackend
	}
	batch := m.db.NewBatch()
	for key, value := range m.overlay {
		batch.Put([]byte(key), value)
	}
	for key := range m.deleted {
		batch.Delete([]byte(key))
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.reset()
	return nil
}

// Rollback discards every write made since Begin.
func (m *Manager) Rollback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

// InTx reports whether a write overlay is open.
func (m *Manager) InTx() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inTx
}

func (m *Manager) reset() {
	m.inTx = false
	m.overlay = nil
	m.deleted = nil
}

func (m *Manager) get(hashed []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.inTx {
		if value, ok := m.overlay[string(hashed)]; ok {
			return value, nil
		}
		if _, ok := m.deleted[string(hashed)]; ok {
			return nil, nil
		}
	}
	if m.db == nil {
		return nil, errNilBackend
	}
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (m *Manager) put(hashed, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inTx {
		m.overlay[string(hashed)] = value
		delete(m.deleted, string(hashed))
		return nil
	}
	if m.db == nil {
		return errNilBackend
	}
	return m.db.Put(hashed, value)
}

func (m *Manager) del(hashed []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inTx {
		delete(m.overlay, string(hashed))
		m.deleted[string(hashed)] = struct{}{}
		return nil
	}
	if m.db == nil {
		return errNilBackend
	}
	return m.db.Delete(hashed)
}

// KVPut stores an RLP-encoded value under the supplied key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// was present.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, errEmptyKey
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	return m.del(kvKey(key))
}

// KVAppend appends the provided value to the RLP-encoded byte slice list stored
// under the supplied key. Duplicate values are ignored to keep the index
// deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	hashed := kvKey(key)
	data, err := m.get(hashed)
	if err != nil {
		return err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	return m.put(hashed, encoded)
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. When no value is
// present the destination is initialised with an empty slice to avoid nil
// surprises for callers.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return errEmptyKey
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}
