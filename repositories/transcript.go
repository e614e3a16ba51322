//go:generate go run go.uber.org/mock/mockgen -source=transcript.go -destination=../mocks/mock_transcript_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"discussion-lab/domain"
)

type ITranscriptRepository interface {
	StoreTurn(turn DiskTurn) error
	GetTurns(sessionID domain.SessionID) ([]DiskTurn, error)
	StoreReport(report DiskReport) error
	GetReports(sessionID domain.SessionID) ([]DiskReport, error)
}

// TranscriptRepository archives discussion turns and final reports in
// BadgerDB. The archive outlives the in-memory sessions; it is never read
// back into a live room.
type TranscriptRepository struct {
	db         *badger.DB
	log        *slog.Logger
	limitTurns *int
}

func NewTranscriptRepository(db *badger.DB, log *slog.Logger, limitTurns *int) TranscriptRepository {
	return TranscriptRepository{db: db, log: log, limitTurns: limitTurns}
}

type DiskTurn struct {
	ID       uuid.UUID        `json:"id"`
	Session  domain.SessionID `json:"session"`
	Speaker  string           `json:"speaker"`
	Name     string           `json:"name,omitempty"`
	Message  string           `json:"message"`
	Language string           `json:"language,omitempty"`
	At       time.Time        `json:"at"`
}

type DiskReport struct {
	Session domain.SessionID `json:"session"`
	Topic   string           `json:"topic"`
	Report  string           `json:"report"`
	At      time.Time        `json:"at"`
}

// StoreTurn persists one turn.
// The key is formatted as "turn:{session}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two turns
//     arrive at the same nanosecond.
func (r TranscriptRepository) StoreTurn(turn DiskTurn) error {
	key := fmt.Sprintf("turn:%s:%019d:%s", turn.Session, turn.At.UnixNano(), turn.ID)
	bytes, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// GetTurns retrieves the archived turns of a session using a prefix scan.
// Thanks to the padded timestamp in the key, turns are naturally sorted by
// time. It stops once the configured limitTurns is reached.
func (r TranscriptRepository) GetTurns(sessionID domain.SessionID) ([]DiskTurn, error) {
	var turns []DiskTurn
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("turn:%s:", sessionID))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if r.limitTurns != nil && len(turns) == *r.limitTurns {
				r.log.Debug(fmt.Sprintf("Maximum of %d turns reached", *r.limitTurns))
				break
			}
			err := it.Item().Value(func(value []byte) error {
				var turn DiskTurn
				if err := json.Unmarshal(value, &turn); err != nil {
					return err
				}
				turns = append(turns, turn)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return turns, err
}

// StoreReport persists the final report of an ended discussion.
// A session can end at most once, but re-creations of the same id get their
// own key thanks to the timestamp.
func (r TranscriptRepository) StoreReport(report DiskReport) error {
	key := fmt.Sprintf("report:%s:%019d", report.Session, report.At.UnixNano())
	bytes, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

func (r TranscriptRepository) GetReports(sessionID domain.SessionID) ([]DiskReport, error) {
	var reports []DiskReport
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("report:%s:", sessionID))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var report DiskReport
				if err := json.Unmarshal(value, &report); err != nil {
					return err
				}
				reports = append(reports, report)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return reports, err
}
