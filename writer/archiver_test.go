package writer

import (
	"strings"
	"testing"
	"time"

	appconfig "volspike/config"
	"volspike/logger"
	"volspike/models"
)

func testArchiver() *Archiver {
	return &Archiver{
		config: &appconfig.Config{
			Writer: appconfig.WriterConfig{Compression: "snappy"},
		},
		log: logger.GetLogger(),
	}
}

func TestAddSnapshotSkipsEmpty(t *testing.T) {
	a := testArchiver()
	a.addSnapshot(models.Snapshot{EmittedAt: 1})
	if len(a.buffer) != 0 {
		t.Fatalf("empty snapshot buffered: %v", a.buffer)
	}

	a.addSnapshot(models.Snapshot{
		EmittedAt: 1,
		Rows:      []models.MarketData{{Symbol: "BTCUSDT"}},
	})
	if len(a.buffer) != 1 {
		t.Fatalf("snapshot not buffered: %v", a.buffer)
	}
}

func TestGenerateS3Key(t *testing.T) {
	a := testArchiver()
	ts := time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)
	key := a.generateS3Key(ts, "batch-1")

	if !strings.HasPrefix(key, "snapshots/date=2025-06-15/hour=09/") {
		t.Errorf("key partitioning wrong: %s", key)
	}
	if !strings.HasSuffix(key, "_batch-1.parquet") {
		t.Errorf("key filename wrong: %s", key)
	}
	if strings.Contains(key, "\\") {
		t.Errorf("key contains backslashes: %s", key)
	}
}

func TestCreateParquetFile(t *testing.T) {
	a := testArchiver()
	snaps := []models.Snapshot{
		{
			EmittedAt: 1718450000000,
			Rows: []models.MarketData{
				{Symbol: "BTCUSDT", Price: 50000, Volume24h: 9e8, Timestamp: 1718450000000},
				{Symbol: "ETHUSDT", Price: 3000, Volume24h: 4e8, Timestamp: 1718450000000},
			},
		},
	}

	data, err := a.createParquetFile("batch-1", snaps)
	if err != nil {
		t.Fatalf("createParquetFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("empty parquet output")
	}
	// Parquet files start and end with the PAR1 magic bytes.
	if string(data[:4]) != "PAR1" || string(data[len(data)-4:]) != "PAR1" {
		t.Errorf("output is not a parquet file")
	}
}
