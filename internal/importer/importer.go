package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/domain"
)

type ProductWriter interface {
	Upsert(ctx context.Context, product domain.Product) (*domain.Product, error)
}

// Columns recognised in the header row. Only title and price are required.
var Columns = []string{"id", "title", "price", "stock", "category", "imageUrl", "description"}

// CSVImporter reads catalog CSV files and inserts or updates products. Rows
// with an id overwrite that product; rows without one are always inserted.
type CSVImporter struct {
	reader *csv.Reader
	writer ProductWriter
	logger *zap.Logger
}

func NewCSVImporter(r io.Reader, writer ProductWriter, logger *zap.Logger) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	csvr.TrimLeadingSpace = true
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVImporter{reader: csvr, writer: writer, logger: logger}
}

// Run parses every row and upserts it, stopping at the first bad row. It
// returns how many products were written.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	for _, required := range []string{"title", "price"} {
		if _, ok := index[required]; !ok {
			return 0, fmt.Errorf("missing %q column", required)
		}
	}

	imported := 0
	for {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read row: %w", err)
		}
		line, _ := i.reader.FieldPos(0)

		p, skip, err := parseRow(record, index)
		if err != nil {
			return imported, fmt.Errorf("line %d: %w", line, err)
		}
		if skip {
			continue
		}
		saved, err := i.writer.Upsert(ctx, p)
		if err != nil {
			return imported, fmt.Errorf("line %d: upsert %q: %w", line, p.Title, err)
		}
		i.logger.Debug("importer: product saved", zap.String("id", saved.ID), zap.String("title", saved.Title))
		imported++
	}
	return imported, nil
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	return idx
}

// parseRow converts one record; blank rows are skipped.
func parseRow(record []string, index map[string]int) (domain.Product, bool, error) {
	blank := true
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			blank = false
			break
		}
	}
	if blank {
		return domain.Product{}, true, nil
	}

	p := domain.Product{
		ID:          pick(record, index, "id"),
		Title:       pick(record, index, "title"),
		Category:    pick(record, index, "category"),
		ImageURL:    pick(record, index, "imageUrl"),
		Description: pick(record, index, "description"),
	}
	if p.ID != "" {
		if _, err := uuid.Parse(p.ID); err != nil {
			return domain.Product{}, false, fmt.Errorf("invalid id %q", p.ID)
		}
	}
	if p.Title == "" {
		return domain.Product{}, false, errors.New("title required")
	}

	price, err := decimal.NewFromString(strings.ReplaceAll(pick(record, index, "price"), ",", "."))
	if err != nil {
		return domain.Product{}, false, fmt.Errorf("invalid price for %q: %w", p.Title, err)
	}
	p.Price = price

	if s := pick(record, index, "stock"); s != "" {
		stock, err := strconv.Atoi(s)
		if err != nil {
			return domain.Product{}, false, fmt.Errorf("invalid stock for %q: %w", p.Title, err)
		}
		p.Stock = stock
	}
	return p, false, nil
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
