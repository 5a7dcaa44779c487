package repository

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	"github.com/smallbiznis/invoicedesk/internal/lock"
	"go.uber.org/zap"
)

const (
	BackendCSV = "csv"

	csvLockKey = "invoice-store:csv"
)

var ErrSchemaMismatch = errors.New("csv header does not match invoice schema")

// CSVStore keeps one invoice per row in a single CSV file with a header.
// Appends are serialised by an in-process mutex and, when configured, a
// cross-process lock.
type CSVStore struct {
	path   string
	start  int64
	locker lock.Locker
	log    *zap.Logger

	mu sync.Mutex
}

func NewCSVStore(path string, start int64, locker lock.Locker, log *zap.Logger) *CSVStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &CSVStore{
		path:   path,
		start:  start,
		locker: locker,
		log:    log.Named("invoice.store.csv"),
	}
}

func (s *CSVStore) Backend() string { return BackendCSV }

func (s *CSVStore) Path() string { return s.path }

func (s *CSVStore) NextInvoiceNumber(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readAll()
	if err != nil {
		return 0, domain.NewStorageError(BackendCSV, "next_number", err)
	}
	return nextFrom(maxStored(rows), s.start), nil
}

func (s *CSVStore) Save(ctx context.Context, rec domain.InvoiceRecord) (domain.InvoiceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, csvLockKey)
		if err != nil {
			return domain.InvoiceRecord{}, domain.NewStorageError(BackendCSV, "lock", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("release csv lock failed", zap.Error(err))
			}
		}()
	}

	if err := ctx.Err(); err != nil {
		return domain.InvoiceRecord{}, domain.NewStorageError(BackendCSV, "save", err)
	}

	rows, err := s.readAll()
	if err != nil {
		return domain.InvoiceRecord{}, domain.NewStorageError(BackendCSV, "save", err)
	}

	saved := prepare(rec, nextFrom(maxStored(rows), s.start))
	stored, err := encodeRecord(saved)
	if err != nil {
		return domain.InvoiceRecord{}, domain.NewStorageError(BackendCSV, "save", err)
	}
	if err := s.appendRow(stored.columns()); err != nil {
		return domain.InvoiceRecord{}, domain.NewStorageError(BackendCSV, "save", err)
	}

	s.log.Debug("invoice appended", zap.Int64("invoice_number", saved.InvoiceNumber), zap.String("path", s.path))
	return saved, nil
}

func (s *CSVStore) Get(ctx context.Context, invoiceNumber int64) (domain.InvoiceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readAll()
	if err != nil {
		return domain.InvoiceRecord{}, domain.NewStorageError(BackendCSV, "get", err)
	}
	for _, row := range rows {
		if row.InvoiceNumber != invoiceNumber {
			continue
		}
		rec, err := decodeRecord(row)
		if err != nil {
			return domain.InvoiceRecord{}, domain.NewStorageError(BackendCSV, "get", err)
		}
		return rec, nil
	}
	return domain.InvoiceRecord{}, domain.ErrInvoiceNotFound
}

func (s *CSVStore) ListAll(ctx context.Context) ([]domain.InvoiceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readAll()
	if err != nil {
		return nil, domain.NewStorageError(BackendCSV, "list", err)
	}
	out := make([]domain.InvoiceRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := decodeRecord(row)
		if err != nil {
			return nil, domain.NewStorageError(BackendCSV, "list", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// readAll returns stored rows in file order. A missing or empty file is an
// empty store.
func (s *CSVStore) readAll() ([]storedRecord, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	var rows []storedRecord
	for line := 2; ; line++ {
		cols, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		row, err := storedFromColumns(cols)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// appendRow writes the row in a single write call and rolls the file back
// to its previous size when the write or sync fails.
func (s *CSVStore) appendRow(cols []string) error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if size == 0 {
		if err := w.Write(Columns); err != nil {
			return err
		}
	}
	if err := w.Write(cols); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return s.rollback(f, size, err)
	}
	if err := f.Sync(); err != nil {
		return s.rollback(f, size, err)
	}
	return nil
}

func (s *CSVStore) rollback(f *os.File, size int64, cause error) error {
	if err := f.Truncate(size); err != nil {
		s.log.Error("truncate after failed append", zap.Error(err), zap.String("path", s.path))
		return errors.Join(cause, err)
	}
	return cause
}

func checkHeader(header []string) error {
	if len(header) != len(Columns) {
		return fmt.Errorf("%w: got %q", ErrSchemaMismatch, strings.Join(header, ","))
	}
	for i, col := range Columns {
		if strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff")) != col {
			return fmt.Errorf("%w: got %q", ErrSchemaMismatch, strings.Join(header, ","))
		}
	}
	return nil
}

func maxStored(rows []storedRecord) int64 {
	var max int64
	for _, row := range rows {
		if row.InvoiceNumber > max {
			max = row.InvoiceNumber
		}
	}
	return max
}
