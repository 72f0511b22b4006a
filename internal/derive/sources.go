package derive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dvloznov/console-reconciler/internal/domain"
	"github.com/dvloznov/console-reconciler/internal/logger"
)

// Fetcher downloads objects addressed by gs:// URIs.
type Fetcher interface {
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
}

// Source is one report to derive from.
type Source struct {
	// Location is a local path or a gs:// URI.
	Location string
	// Label is the expected label; empty means infer from the file name.
	Label domain.Label
}

// LabelFromName infers the label from a report file name such as
// "wd-transaction_history.txt".
func LabelFromName(location string) (domain.Label, bool) {
	base := filepath.Base(strings.TrimPrefix(location, "gs://"))
	prefix, _, ok := strings.Cut(base, "-")
	if !ok {
		return "", false
	}
	label, err := domain.ParseLabel(prefix)
	if err != nil {
		return "", false
	}
	return label, true
}

// Reader loads report sources.
type Reader struct {
	Fetcher Fetcher
}

func (r Reader) read(ctx context.Context, location string) (string, error) {
	if strings.HasPrefix(location, "gs://") {
		if r.Fetcher == nil {
			return "", fmt.Errorf("no storage configured for %s", location)
		}
		data, err := r.Fetcher.FetchFromGCS(ctx, location)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := os.ReadFile(location)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FromSources derives records from every source in order. A source that
// cannot be read or parsed is logged and skipped; the rest still count.
// The returned error is non-nil only when ctx ends.
func (r Reader) FromSources(ctx context.Context, sources []Source) ([]domain.DerivedTaxRecord, error) {
	log := logger.FromContext(ctx)

	var out []domain.DerivedTaxRecord
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		label := src.Label
		if label == "" {
			if inferred, ok := LabelFromName(src.Location); ok {
				label = inferred
			}
		}

		text, err := r.read(ctx, src.Location)
		if err != nil {
			log.Error().Err(err).Str("source", src.Location).Msg("report could not be read, skipping")
			continue
		}

		recs, err := recordsFrom(ctx, src.Location, text, label)
		if errors.Is(err, ErrParse) {
			log.Error().Err(err).Msg("report skipped")
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, recs...)
	}
	return out, nil
}
