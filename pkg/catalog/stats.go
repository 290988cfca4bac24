package catalog

import (
	"path"
	"regexp"
	"sort"
	"time"

	units "github.com/docker/go-units"
	"github.com/fedora-flatpak/flathub-filter/pkg/model"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var (
	json = jsoniter.ConfigCompatibleWithStandardLibrary

	statsFileRe = regexp.MustCompile(`^flathub-downloads-([0-9]{4}-[0-9]{2}-[0-9]{2})\.json$`)
)

const statsDateLayout = "2006-01-02"

// DailyStats is the content of a daily statistics file. For each ref and architecture,
// it holds a pair [total downloads, downloads which were updates].
type DailyStats struct {
	Refs map[string]map[string][]int64 `json:"refs"`
}

// NewDownloads sums up the downloads which were not updates, over all architectures
func (d DailyStats) NewDownloads() map[string]int64 {
	totals := make(map[string]int64, len(d.Refs))
	for id, arches := range d.Refs {
		for _, counts := range arches {
			if len(counts) < 2 {
				continue
			}
			totals[id] += counts[0] - counts[1]
		}
	}
	return totals
}

// statsDates lists the days for which statistics are cached, most recent first
func statsDates(fs afero.Fs, cacheDir string) ([]time.Time, error) {
	infos, err := afero.ReadDir(fs, cacheDir)
	if err != nil {
		return nil, ErrCache.Wrap(err)
	}
	dates := make([]time.Time, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		m := statsFileRe.FindStringSubmatch(info.Name())
		if m == nil {
			continue
		}
		day, err := time.Parse(statsDateLayout, m[1])
		if err != nil {
			continue
		}
		dates = append(dates, day)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })
	return dates, nil
}

// loadTotals sums up new downloads over the statistics window ending with the most recent cached day.
// Missing days within the window are skipped.
func loadTotals(fs afero.Fs, cacheDir string, s settings) (map[string]int64, error) {
	totals := make(map[string]int64)
	dates, err := statsDates(fs, cacheDir)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		s.l.Warn("no cached download statistics: all components rank equal", zap.String("cache", cacheDir))
		return totals, nil
	}

	newest := dates[0]
	if age := s.now().Sub(newest); age > s.staleAfter {
		s.l.Warn("cached download statistics are stale",
			zap.String("newest", newest.Format(statsDateLayout)),
			zap.String("age", units.HumanDuration(age)),
		)
	}

	oldest := newest.AddDate(0, 0, -(s.statsWindow - 1))
	var used int
	for _, day := range dates {
		if day.Before(oldest) {
			break
		}
		pth := path.Join(cacheDir, model.GetPathToDownloads(day.Year(), int(day.Month()), day.Day()))
		buffer, err := afero.ReadFile(fs, pth)
		if err != nil {
			return nil, ErrCache.Wrap(err)
		}
		var daily DailyStats
		if err = json.Unmarshal(buffer, &daily); err != nil {
			return nil, ErrCache.WrapMessage("%s", pth).Wrap(err)
		}
		for id, count := range daily.NewDownloads() {
			totals[id] += count
		}
		used++
	}

	if used < s.statsWindow {
		s.l.Debug("some daily statistics are missing",
			zap.Int("used", used),
			zap.Int("window", s.statsWindow),
		)
	}
	return totals, nil
}
