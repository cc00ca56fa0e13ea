package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"showsync/internal/database"
)

// Exporter writes watched-history snapshots as .xlsx reports.
type Exporter struct {
	db     *database.DB
	path   string
	logger *zerolog.Logger
}

func NewExporter(db *database.DB, path string, logger *zerolog.Logger) *Exporter {
	return &Exporter{db: db, path: path, logger: logger}
}

// WatchedHistory writes a report with one sheet for shows and one for
// movies, returning the file path.
func (e *Exporter) WatchedHistory(ctx context.Context) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	shows, err := e.db.GetWatchedShows(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting watched shows: %w", err)
	}
	movies, err := e.db.GetWatchedMovies(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting watched movies: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	showSheet := "Shows"
	index, err := f.NewSheet(showSheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	showHeaders := []string{"Title", "Watched", "Episodes", "Rating", "Watchlist", "Collection"}
	for col, header := range showHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(showSheet, cell, header)
		_ = f.SetCellStyle(showSheet, cell, cell, headerStyle)
	}
	for row, show := range shows {
		values := []any{show.Title, show.WatchedCount, show.EpisodeCount,
			show.UserRating, show.InWatchlist, show.InCollection}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(showSheet, cell, value)
		}
	}
	_ = f.SetColWidth(showSheet, "A", "A", 40)

	movieSheet := "Movies"
	if _, err := f.NewSheet(movieSheet); err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	movieHeaders := []string{"Title", "Watched At", "Rating", "Watchlist", "Collection"}
	for col, header := range movieHeaders {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(movieSheet, cell, header)
		_ = f.SetCellStyle(movieSheet, cell, cell, headerStyle)
	}
	for row, movie := range movies {
		watchedAt := ""
		if movie.WatchedAt != nil {
			watchedAt = movie.WatchedAt.Format("2006-01-02 15:04")
		}
		values := []any{movie.Title, watchedAt, movie.UserRating, movie.InWatchlist, movie.InCollection}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(movieSheet, cell, value)
		}
	}
	_ = f.SetColWidth(movieSheet, "A", "A", 40)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("history_%s.xlsx", time.Now().Format("2006-01-02"))
	filePath := filepath.Join(e.path, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("history export created")
	return filePath, nil
}
