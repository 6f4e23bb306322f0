package security

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	omgerrors "github.com/PyRo1121/omg-sub002/pkg/errors"
)

// AuditSeverity mirrors §3's AuditEntry severity domain.
type AuditSeverity string

const (
	AuditDebug    AuditSeverity = "debug"
	AuditInfo     AuditSeverity = "info"
	AuditWarning  AuditSeverity = "warning"
	AuditError    AuditSeverity = "error"
	AuditCritical AuditSeverity = "critical"
)

// genesisHash is the fixed zero hash the first entry in a chain links to
// (§3, §6: "The genesis previous_hash is 64 zeros").
const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// AuditEntry is §3's AuditEntry tuple. PreviousHash/EntryHash are computed
// by the log, never set by the caller.
type AuditEntry struct {
	Timestamp    string        `json:"timestamp"`
	Severity     AuditSeverity `json:"severity"`
	EventType    string        `json:"event_type"`
	Description  string        `json:"description"`
	Resource     string        `json:"resource"`
	PreviousHash string        `json:"previous_hash"`
	EntryHash    string        `json:"entry_hash"`
}

// AuditLog is the append-only, hash-chained JSONL file at data-dir
// audit.log (§6). Appends are globally serialized by a process-wide
// mutex held for the duration of write+fsync, so concurrent appenders
// queue rather than interleave.
type AuditLog struct {
	mu       sync.Mutex
	path     string
	lastHash string
}

// OpenAuditLog opens (creating if absent) the log at path and replays it
// once to recover the last entry's hash, so Append can continue the chain
// across process restarts.
func OpenAuditLog(path string) (*AuditLog, error) {
	log := &AuditLog{path: path, lastHash: genesisHash}

	f, err := os.OpenFile(path, os.O_RDONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil, omgerrors.Internal("failed to open audit log", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var entry AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		log.lastHash = entry.EntryHash
	}

	return log, nil
}

// Append writes one record, computing entry_hash = H(previous_hash ||
// serialize(entry_without_hash)) and fsyncing before returning (§4.3,
// invariant 1 in §8).
func (l *AuditLog) Append(severity AuditSeverity, eventType, description, resource string) (AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := AuditEntry{
		Timestamp:    time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Severity:     severity,
		EventType:    eventType,
		Description:  description,
		Resource:     resource,
		PreviousHash: l.lastHash,
	}

	unhashed, err := json.Marshal(entryWithoutHash(entry))
	if err != nil {
		return AuditEntry{}, omgerrors.Internal("failed to serialize audit entry", err)
	}
	entry.EntryHash = computeEntryHash(entry.PreviousHash, unhashed)

	line, err := json.Marshal(entry)
	if err != nil {
		return AuditEntry{}, omgerrors.Internal("failed to serialize audit entry", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return AuditEntry{}, omgerrors.Internal("failed to open audit log for append", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return AuditEntry{}, omgerrors.Internal("failed to write audit entry", err)
	}
	if err := f.Sync(); err != nil {
		return AuditEntry{}, omgerrors.Internal("failed to fsync audit log", err)
	}

	l.lastHash = entry.EntryHash
	return entry, nil
}

// entryWithoutHashJSON is the subset of AuditEntry hashed to produce
// EntryHash; it excludes EntryHash itself but includes PreviousHash.
type entryWithoutHashJSON struct {
	Timestamp    string        `json:"timestamp"`
	Severity     AuditSeverity `json:"severity"`
	EventType    string        `json:"event_type"`
	Description  string        `json:"description"`
	Resource     string        `json:"resource"`
	PreviousHash string        `json:"previous_hash"`
}

func entryWithoutHash(e AuditEntry) entryWithoutHashJSON {
	return entryWithoutHashJSON{
		Timestamp: e.Timestamp, Severity: e.Severity, EventType: e.EventType,
		Description: e.Description, Resource: e.Resource, PreviousHash: e.PreviousHash,
	}
}

func computeEntryHash(previousHash string, serializedWithoutHash []byte) string {
	h := sha256.New()
	h.Write([]byte(previousHash))
	h.Write(serializedWithoutHash)
	return hex.EncodeToString(h.Sum(nil))
}

// IntegrityReport is verify_integrity's result (§4.3, §8 scenario 4).
type IntegrityReport struct {
	Total       int
	Valid       int
	ChainValid  bool
	FirstInvalid string
}

// VerifyIntegrity rereads the log top-to-bottom, recomputing each hash and
// asserting chain continuity.
func VerifyIntegrity(path string) (IntegrityReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return IntegrityReport{}, omgerrors.Internal("failed to open audit log", err)
	}
	defer f.Close()

	report := IntegrityReport{ChainValid: true}
	expectedPrevHash := genesisHash

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	index := 0
	for scanner.Scan() {
		index++
		report.Total++

		var entry AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			report.ChainValid = false
			if report.FirstInvalid == "" {
				report.FirstInvalid = fmt.Sprintf("entry %d", index)
			}
			continue
		}

		unhashed, err := json.Marshal(entryWithoutHash(entry))
		valid := err == nil &&
			entry.PreviousHash == expectedPrevHash &&
			entry.EntryHash == computeEntryHash(entry.PreviousHash, unhashed)

		if valid {
			report.Valid++
		} else {
			report.ChainValid = false
			if report.FirstInvalid == "" {
				report.FirstInvalid = fmt.Sprintf("entry %d", index)
			}
		}

		expectedPrevHash = entry.EntryHash
	}

	return report, nil
}
