package activity

import (
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

const sampleRawData = "2024-01-02 10:00:00\tu1\ti1\tMovie\tHeat\tDirectPlay\tweb\tliving-room\t600\n" +
	"2024-01-02 11:00:00\tu2\ti2\tEpisode\tShow A - s01e01 - Pilot\tTranscode\ttv\tbedroom\t1200\n"

func TestImportRawData(t *testing.T) {
	repo, _ := setupTestRepo(t)

	count, err := repo.ImportRawData(sampleRawData)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	types, err := repo.ItemTypes()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Movie", "Episode"}, types)
}

func TestImportRawDataIsIdempotent(t *testing.T) {
	repo, _ := setupTestRepo(t)

	count, err := repo.ImportRawData(sampleRawData)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	// Second pass finds every row already present and inserts nothing.
	count, err = repo.ImportRawData(sampleRawData)
	require.NoError(t, err)
	require.Equal(t, 0, count)

	data, err := repo.ExportRawData()
	require.NoError(t, err)
	require.Equal(t, 2, strings.Count(data, "\n"))
}

func TestImportRawDataSkipsMalformedLines(t *testing.T) {
	repo, _ := setupTestRepo(t)

	raw := "not a valid line\n" +
		"2024-01-02 10:00:00\tu1\ti1\tMovie\n" + // too few fields
		sampleRawData
	count, err := repo.ImportRawData(raw)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestExportRoundTrip(t *testing.T) {
	repo, _ := setupTestRepo(t)

	count, err := repo.ImportRawData(sampleRawData)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	exported, err := repo.ExportRawData()
	require.NoError(t, err)
	require.Equal(t, sampleRawData, exported)

	// Importing the export into a fresh store reproduces it byte for byte.
	repo2, _ := setupTestRepo(t)
	count, err = repo2.ImportRawData(exported)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	exported2, err := repo2.ExportRawData()
	require.NoError(t, err)
	require.Equal(t, exported, exported2)
}

func TestExportEmptyStore(t *testing.T) {
	repo, _ := setupTestRepo(t)

	data, err := repo.ExportRawData()
	require.NoError(t, err)
	require.Equal(t, "", data)
}
