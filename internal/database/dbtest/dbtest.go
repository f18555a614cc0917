// Package dbtest はPostgreSQLを使う統合テストの共通セットアップを提供する。
//
// 環境変数 TEST_DATABASE_URL が設定されていればそのDBを使用し、
// 未設定の場合はtestcontainersで使い捨てのPostgreSQLコンテナを起動する。
// どちらも利用できない環境ではテストをスキップする。
package dbtest

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// cleanupSQL は既存のテーブルとマイグレーション履歴を削除する。
const cleanupSQL = `
	DROP TABLE IF EXISTS session CASCADE;
	DROP TABLE IF EXISTS account CASCADE;
	DROP TABLE IF EXISTS "user" CASCADE;
	DROP TABLE IF EXISTS schema_migrations CASCADE;
`

// Setup はテスト用データベースを準備し、接続とURLを返す。
// テスト実行前に全テーブルをドロップしてクリーンな状態にする。
// 接続はt.Cleanupで閉じられる。
func Setup(t *testing.T) (*sql.DB, string) {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = startContainer(t)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("データベースへの接続に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Ping(); err != nil {
		t.Skipf("テスト用データベースに接続できません（スキップ）: %v", err)
	}

	if _, err := db.Exec(cleanupSQL); err != nil {
		t.Fatalf("クリーンアップに失敗: %v", err)
	}

	return db, dbURL
}

// startContainer はPostgreSQLコンテナを起動して接続URLを返す。
// Dockerが利用できない場合はテストをスキップする。
func startContainer(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("shortモードのためPostgreSQLコンテナを起動しません")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("docauth_test"),
		postgres.WithUsername("docauth"),
		postgres.WithPassword("docauth"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Skipf("PostgreSQLコンテナを起動できません（スキップ）: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("接続文字列の取得に失敗: %v", err)
	}
	return connStr
}
