package migration

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

// openTestDB はテスト用のインメモリSQLiteを開く。
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDB接続に失敗: %v", err)
	}
	// インメモリDBは接続ごとに別物になるため1本に固定する
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// TestRun はマイグレーションの適用を検証する。
func TestRun(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"migrations/000002_add_notes.up.sql":      {Data: []byte("ALTER TABLE items ADD COLUMN notes TEXT NOT NULL DEFAULT '';")},
		"migrations/000001_create_items.up.sql":   {Data: []byte("CREATE TABLE items (id INTEGER PRIMARY KEY);")},
		"migrations/000001_create_items.down.sql": {Data: []byte("DROP TABLE items;")},
		"migrations/README.md":                    {Data: []byte("ignored")},
	}

	t.Run("バージョン順に適用されること", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		if err := Run(context.Background(), db, fsys, "migrations", "test", nil); err != nil {
			t.Fatalf("Run()でエラーが発生: %v", err)
		}

		if _, err := db.Exec("INSERT INTO items (id, notes) VALUES (1, 'ok')"); err != nil {
			t.Fatalf("マイグレーション後のINSERTに失敗: %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE scope = 'test'").Scan(&count); err != nil {
			t.Fatalf("schema_migrationsの取得に失敗: %v", err)
		}
		if count != 2 {
			t.Errorf("適用数 = %d, want 2", count)
		}
	})

	t.Run("2回実行しても冪等であること", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		for i := 0; i < 2; i++ {
			if err := Run(context.Background(), db, fsys, "migrations", "test", nil); err != nil {
				t.Fatalf("%d回目のRun()でエラーが発生: %v", i+1, err)
			}
		}
	})

	t.Run("スコープが異なれば同じバージョンでも適用されること", func(t *testing.T) {
		t.Parallel()

		other := fstest.MapFS{
			"m/000001_create_others.up.sql": {Data: []byte("CREATE TABLE others (id INTEGER PRIMARY KEY);")},
		}
		db := openTestDB(t)
		if err := Run(context.Background(), db, fsys, "migrations", "a", nil); err != nil {
			t.Fatalf("Run()でエラーが発生: %v", err)
		}
		if err := Run(context.Background(), db, other, "m", "b", nil); err != nil {
			t.Fatalf("Run()でエラーが発生: %v", err)
		}
		if _, err := db.Exec("INSERT INTO others (id) VALUES (1)"); err != nil {
			t.Fatalf("othersテーブルが作成されていない: %v", err)
		}
	})

	t.Run("不正なSQLでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		broken := fstest.MapFS{
			"m/000001_broken.up.sql": {Data: []byte("CREATE TABLE (")},
		}
		db := openTestDB(t)
		if err := Run(context.Background(), db, broken, "m", "broken", nil); err == nil {
			t.Fatal("Run()がエラーを返すべきだが、nilが返った")
		}
	})
}
