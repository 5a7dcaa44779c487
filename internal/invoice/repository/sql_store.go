package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	"github.com/smallbiznis/invoicedesk/pkg/db"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const BackendSQL = "sql"

// sequenceLockKey is the advisory lock id guarding invoice numbering.
const sequenceLockKey int64 = 0x1f0a_1ce5

// InvoiceRow is the invoices table.
type InvoiceRow struct {
	ID              int64           `gorm:"primaryKey;autoIncrement:false"`
	InvoiceNumber   int64           `gorm:"column:invoice_number;not null;uniqueIndex:ux_invoices_invoice_number"`
	CustomerName    string          `gorm:"column:customer_name;type:text;not null"`
	CustomerAddress string          `gorm:"column:customer_address;type:text;not null"`
	OrderBookerName string          `gorm:"column:order_booker_name;type:text;not null;default:''"`
	Items           datatypes.JSON  `gorm:"column:items;not null"`
	TotalAmount     decimal.Decimal `gorm:"column:total_amount;type:decimal(18,4);not null"`
	InvoiceDate     string          `gorm:"column:invoice_date;type:varchar(10);not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;not null"`
}

func (InvoiceRow) TableName() string { return "invoices" }

type SQLStore struct {
	db      *gorm.DB
	genID   *snowflake.Node
	start   int64
	dialect string
	log     *zap.Logger

	// SQLite has no row locks; the mutex keeps numbering serial within
	// this process and the unique index rejects anything that slips past.
	mu sync.Mutex
}

func NewSQLStore(conn *gorm.DB, genID *snowflake.Node, start int64, log *zap.Logger) *SQLStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &SQLStore{
		db:      conn,
		genID:   genID,
		start:   start,
		dialect: conn.Dialector.Name(),
		log:     log.Named("invoice.store.sql"),
	}
}

func (s *SQLStore) Backend() string { return BackendSQL }

func (s *SQLStore) NextInvoiceNumber(ctx context.Context) (int64, error) {
	max, err := s.maxNumber(s.db.WithContext(ctx))
	if err != nil {
		return 0, domain.NewStorageError(BackendSQL, "next_number", err)
	}
	return nextFrom(max, s.start), nil
}

func (s *SQLStore) Save(ctx context.Context, rec domain.InvoiceRecord) (domain.InvoiceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var saved domain.InvoiceRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockSequence(tx); err != nil {
			return fmt.Errorf("lock sequence: %w", err)
		}

		max, err := s.maxNumber(tx)
		if err != nil {
			return err
		}
		saved = prepare(rec, nextFrom(max, s.start))

		row, err := s.toRow(saved)
		if err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			err = fmt.Errorf("invoice number %d already issued: %w", saved.InvoiceNumber, err)
		}
		return domain.InvoiceRecord{}, domain.NewStorageError(BackendSQL, "save", err)
	}

	s.log.Debug("invoice persisted", zap.Int64("invoice_number", saved.InvoiceNumber))
	return saved, nil
}

func (s *SQLStore) Get(ctx context.Context, invoiceNumber int64) (domain.InvoiceRecord, error) {
	var row InvoiceRow
	err := s.db.WithContext(ctx).
		Where("invoice_number = ?", invoiceNumber).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.InvoiceRecord{}, domain.ErrInvoiceNotFound
	}
	if err != nil {
		return domain.InvoiceRecord{}, domain.NewStorageError(BackendSQL, "get", err)
	}
	rec, err := fromRow(row)
	if err != nil {
		return domain.InvoiceRecord{}, domain.NewStorageError(BackendSQL, "get", err)
	}
	return rec, nil
}

func (s *SQLStore) ListAll(ctx context.Context) ([]domain.InvoiceRecord, error) {
	var rows []InvoiceRow
	if err := s.db.WithContext(ctx).Order("invoice_number ASC").Find(&rows).Error; err != nil {
		return nil, domain.NewStorageError(BackendSQL, "list", err)
	}

	out := make([]domain.InvoiceRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := fromRow(row)
		if err != nil {
			return nil, domain.NewStorageError(BackendSQL, "list", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *SQLStore) lockSequence(tx *gorm.DB) error {
	switch s.dialect {
	case "postgres":
		return tx.Exec("SELECT pg_advisory_xact_lock(?)", sequenceLockKey).Error
	case "mysql":
		var ignored sql.NullInt64
		return tx.Raw("SELECT MAX(invoice_number) FROM invoices FOR UPDATE").Scan(&ignored).Error
	default:
		return nil
	}
}

func (s *SQLStore) maxNumber(tx *gorm.DB) (int64, error) {
	var max sql.NullInt64
	if err := tx.Model(&InvoiceRow{}).Select("MAX(invoice_number)").Scan(&max).Error; err != nil {
		return 0, err
	}
	return max.Int64, nil
}

func (s *SQLStore) toRow(rec domain.InvoiceRecord) (InvoiceRow, error) {
	stored, err := encodeRecord(rec)
	if err != nil {
		return InvoiceRow{}, err
	}
	id := time.Now().UnixNano()
	if s.genID != nil {
		id = s.genID.Generate().Int64()
	}
	return InvoiceRow{
		ID:              id,
		InvoiceNumber:   rec.InvoiceNumber,
		CustomerName:    rec.CustomerName,
		CustomerAddress: rec.CustomerAddress,
		OrderBookerName: rec.OrderBookerName,
		Items:           datatypes.JSON(stored.Items),
		TotalAmount:     rec.TotalAmount,
		InvoiceDate:     stored.Date,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

func fromRow(row InvoiceRow) (domain.InvoiceRecord, error) {
	return decodeRecord(storedRecord{
		InvoiceNumber:   row.InvoiceNumber,
		CustomerName:    row.CustomerName,
		CustomerAddress: row.CustomerAddress,
		OrderBookerName: row.OrderBookerName,
		Items:           string(row.Items),
		TotalAmount:     row.TotalAmount.String(),
		Date:            row.InvoiceDate,
	})
}
