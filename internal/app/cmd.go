package app

import (
	"io"

	"github.com/spf13/cobra"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。引数なしの場合のデフォルト。
	CommandServe Command = "serve"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandCleanup は期限切れセッションを削除することを示す。
	CommandCleanup Command = "cleanup"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// NewRootCmd はdocauthのCLIルートコマンドを生成する。
// サブコマンドを省略した場合はserveとして動作する。
// ログはwに出力する。
func NewRootCmd(w io.Writer) *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "docauth",
		Short: "docauth - ドキュメントサイト向け認証サーバー",
		Long: `docauth はメールアドレスとパスワードによるサインアップ・サインインと
Bearerトークンによるセッション管理を提供する認証サーバー。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeCommand(cmd, w, skipMigrate)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "起動時のマイグレーションを実行しない")

	cmd.AddCommand(newServeCmd(w))
	cmd.AddCommand(newMigrateCmd(w))
	cmd.AddCommand(newCleanupCmd(w))
	cmd.AddCommand(newHealthcheckCmd())

	return cmd
}

func newServeCmd(w io.Writer) *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   string(CommandServe),
		Short: "APIサーバーを起動する",
		Long: `スキーマのマイグレーションを適用した後にAPIサーバーを起動する。
SIGINTまたはSIGTERMを受信するとグレースフルシャットダウンする。`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeCommand(cmd, w, skipMigrate)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "起動時のマイグレーションを実行しない")

	return cmd
}

func newMigrateCmd(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   string(CommandMigrate),
		Short: "データベースマイグレーションを実行する",
		Long:  `未適用のマイグレーションをすべて順番に適用する。`,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := Init(w)
			if err != nil {
				return err
			}
			logStart(CommandMigrate, cfg)
			return runMigrate(cfg)
		},
	}
}

func newCleanupCmd(w io.Writer) *cobra.Command {
	var opts cleanupOptions

	cmd := &cobra.Command{
		Use:   string(CommandCleanup),
		Short: "期限切れセッションを削除する",
		Long:  `有効期限を過ぎたセッションを削除して終了する。cron等から定期実行することを想定している。`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := Init(w)
			if err != nil {
				return err
			}
			logStart(CommandCleanup, cfg)
			return runCleanup(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().DurationVar(&opts.grace, "grace", 0, "期限切れからこの期間を過ぎたセッションだけを削除する")

	return cmd
}

func newHealthcheckCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   string(CommandHealthcheck),
		Short: "稼働中のAPIサーバーの/healthを確認する",
		Long: `ローカルのAPIサーバーの/healthにリクエストを送り、200以外なら失敗する。
設定の読み込みやDB接続は行わない。`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHealthcheck(cmd.Context(), healthcheckURL(port))
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "確認するポート（省略時は環境変数または.envのPORT、未設定なら5000）")

	return cmd
}

func runServeCommand(cmd *cobra.Command, w io.Writer, skipMigrate bool) error {
	cfg, err := Init(w)
	if err != nil {
		return err
	}
	logStart(CommandServe, cfg)
	return runServe(cmd.Context(), cfg, serveOptions{skipMigrate: skipMigrate})
}
