package provision

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/dvloznov/console-reconciler/internal/domain"
	"github.com/dvloznov/console-reconciler/internal/logger"
)

var playerLineRe = regexp.MustCompile(`(?i)^#(\d+)\s+-\s+Phone:\s+(\d+),\s+Email:\s+(.*?),\s+Affiliate:\s+(.*)`)

// ParsePlayerRecords reads a player file and returns its records in
// processing order: the last line of the file comes first. Blank lines are
// ignored and malformed lines are logged and skipped.
func ParsePlayerRecords(ctx context.Context, r io.Reader) ([]domain.PlayerRecord, error) {
	log := logger.FromContext(ctx)

	var parsed []domain.PlayerRecord
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		rec, ok := parsePlayerLine(line)
		if !ok {
			log.Warn().Int("line", lineNo).Str("text", line).Msg("malformed player line, skipping")
			continue
		}
		rec.Line = lineNo
		parsed = append(parsed, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("ParsePlayerRecords: reading input: %w", err)
	}

	out := make([]domain.PlayerRecord, len(parsed))
	for i, rec := range parsed {
		out[len(parsed)-1-i] = rec
	}
	return out, nil
}

func parsePlayerLine(line string) (domain.PlayerRecord, bool) {
	m := playerLineRe.FindStringSubmatch(line)
	if m == nil {
		return domain.PlayerRecord{}, false
	}
	seq, err := strconv.Atoi(m[1])
	if err != nil {
		return domain.PlayerRecord{}, false
	}
	return domain.PlayerRecord{
		Seq:       seq,
		Phone:     strings.TrimSpace(m[2]),
		Email:     strings.TrimSpace(m[3]),
		Affiliate: strings.TrimSpace(m[4]),
	}, true
}
