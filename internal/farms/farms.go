package farms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/farm-weather-service/internal/models"
	"github.com/kjstillabower/farm-weather-service/internal/observability"
)

var (
	// ErrFarmsFileNotFound maps to 404.
	ErrFarmsFileNotFound = errors.New("farms file not found")
	// ErrFarmsFileUnreadable maps to 500.
	ErrFarmsFileUnreadable = errors.New("failed to read farms file")
	// ErrNoValidFarms is returned when no line of the file decodes to a JSON object (500).
	ErrNoValidFarms = errors.New("no valid farms found")
)

// Source returns the farm list.
type Source interface {
	Load(ctx context.Context) ([]models.Farm, error)
	Path() string
}

// FileSource reads farms from a file holding one JSON object per line, optionally
// wrapped in [ ] and with trailing commas (a JSON array written line by line).
// The file is re-read on every call.
type FileSource struct {
	path   string
	logger *zap.Logger
}

// NewFileSource returns a FileSource for path. A nil logger disables parse warnings.
func NewFileSource(path string, logger *zap.Logger) *FileSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSource{path: path, logger: logger}
}

// Path returns the configured farm file path.
func (s *FileSource) Path() string {
	return s.path
}

// Load reads and parses the farm file. Lines that are not JSON objects are skipped with a
// warning; records without id, lat or lng are dropped.
func (s *FileSource) Load(ctx context.Context) ([]models.Farm, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFarmsFileNotFound, s.path)
		}
		return nil, fmt.Errorf("%w: %w", ErrFarmsFileUnreadable, err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFarmsFileUnreadable, err)
	}

	records := s.parseLines(data)
	if len(records) == 0 {
		return nil, ErrNoValidFarms
	}

	farms := make([]models.Farm, 0, len(records))
	for _, rec := range records {
		if farm, ok := extractFarm(rec); ok {
			farms = append(farms, farm)
		}
	}
	return farms, nil
}

// parseLines decodes one JSON object per line.
func (s *FileSource) parseLines(data []byte) []map[string]any {
	body := strings.TrimSpace(string(data))
	body = strings.Trim(body, "[]")

	var records []map[string]any
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimRight(line, ",")
		if line == "" {
			continue
		}

		rec, err := decodeObject(line)
		if err != nil {
			observability.FarmLinesSkippedTotal.Inc()
			s.logger.Warn("failed to parse farm line",
				zap.String("line", truncate(line, 100)),
				zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	return records
}

func decodeObject(line string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()
	var rec map[string]any
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.New("not a JSON object")
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON object")
	}
	return rec, nil
}

func extractFarm(rec map[string]any) (models.Farm, bool) {
	id := rec["id"]
	if id == nil {
		return models.Farm{}, false
	}

	lat, lng, ok := parseCenter(rec["center"])
	if !ok {
		return models.Farm{}, false
	}

	name := "Unknown"
	if n, ok := rec["name"]; ok && n != nil {
		name = fmt.Sprint(n)
	}

	return models.Farm{ID: id, Name: name, Lat: lat, Lng: lng}, true
}

// parseCenter accepts [lat, lng], "[lat, lng]" or "lat,lng".
func parseCenter(v any) (lat, lng float64, ok bool) {
	switch c := v.(type) {
	case []any:
		return pairFromSlice(c)
	case string:
		s := strings.Trim(strings.TrimSpace(c), `"`)
		var arr []any
		dec := json.NewDecoder(bytes.NewReader([]byte(s)))
		dec.UseNumber()
		if err := dec.Decode(&arr); err == nil {
			return pairFromSlice(arr)
		}
		parts := strings.Split(s, ",")
		if len(parts) != 2 {
			return 0, 0, false
		}
		lat, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		lng, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err1 != nil || err2 != nil {
			return 0, 0, false
		}
		return lat, lng, true
	}
	return 0, 0, false
}

func pairFromSlice(arr []any) (lat, lng float64, ok bool) {
	if len(arr) < 2 {
		return 0, 0, false
	}
	lat, ok1 := toFloat(arr[0])
	lng, ok2 := toFloat(arr[1])
	return lat, lng, ok1 && ok2
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
