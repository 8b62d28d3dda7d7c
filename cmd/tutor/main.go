package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/lecturetutor/internal/catalog"
	"github.com/pavelanni/lecturetutor/internal/handler"
	appI18n "github.com/pavelanni/lecturetutor/internal/i18n"
	"github.com/pavelanni/lecturetutor/internal/llm"
	"github.com/pavelanni/lecturetutor/internal/llm/prompts"
	"github.com/pavelanni/lecturetutor/internal/model"
	"github.com/pavelanni/lecturetutor/internal/store"
	"github.com/pavelanni/lecturetutor/internal/transcript"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tutor",
		Short: "Interactive tutor for a lecture video",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportBankCmd(), transcriptCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `tutor --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP tutor server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.StringP("topics", "t", "topics.json", "Topic bank file (JSON or YAML)")
	f.String("transcript", "", "Lecture transcript with (MM:SS) markers")
	f.String("prompts-dir", "", "Directory with prompt template overrides (<name>.txt)")
	f.String("video-url", "", "Lecture video URL")
	f.String("db", "tutor.db", "SQLite database for question bank drafts (empty disables authoring)")
	addLLMFlags(f)
	f.Bool("llm-check", true, "Check the LLM endpoint before serving")
	f.StringP("lang", "l", "en", "Fallback UI language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /ml)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	addLogFlags(f)
	return cmd
}

func exportBankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export-bank",
		Short: "Export question bank drafts as JSON",
		RunE:  runExportBank,
	}
	f := cmd.Flags()
	f.String("db", "tutor.db", "SQLite database path")
	f.StringP("topics", "t", "", "Import this topic bank before exporting")
	f.StringP("output", "o", store.ExportFileName, "Output file path (- for stdout)")
	addLogFlags(f)
	return cmd
}

func transcriptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Print the transcript section of a topic or a time range",
		RunE:  runTranscript,
	}
	f := cmd.Flags()
	f.String("transcript", "", "Lecture transcript with (MM:SS) markers (required)")
	f.StringP("topics", "t", "", "Topic bank file, used with --topic")
	f.String("topic", "", "Topic title")
	f.String("start", "00:00", "Range start (MM:SS or seconds)")
	f.String("end", "", "Range end (MM:SS or seconds); empty means to the end")
	addLogFlags(f)
	_ = cmd.MarkFlagRequired("transcript")
	return cmd
}

type flagSet interface {
	String(name, value, usage string) *string
	Int(name string, value int, usage string) *int
	Float32(name string, value float32, usage string) *float32
	Duration(name string, value time.Duration, usage string) *time.Duration
}

func addLLMFlags(f flagSet) {
	f.String("llm-provider", string(llm.ProviderOpenAI), "LLM API flavour (openai, azure)")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL or Azure endpoint")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model or Azure deployment name")
	f.String("llm-api-version", "", "Azure API version")
	f.Float32("llm-temperature", 0.7, "Sampling temperature")
	f.Int("llm-attempts", 2, "Tries per LLM call")
	f.Duration("llm-timeout", 60*time.Second, "Timeout per LLM try")
}

func addLogFlags(f flagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func setupLogging(v *viper.Viper) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("TUTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("tutor")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/tutor")
	v.AddConfigPath("/etc/tutor")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	topicsPath := v.GetString("topics")
	cat, err := catalog.Load(topicsPath)
	if err != nil {
		return fmt.Errorf("load topics: %w", err)
	}

	var idx *transcript.Index
	if path := v.GetString("transcript"); path != "" {
		if idx, err = transcript.Load(path); err != nil {
			return fmt.Errorf("load transcript: %w", err)
		}
	}

	set, err := prompts.Load(v.GetString("prompts-dir"))
	if err != nil {
		return fmt.Errorf("load prompts: %w", err)
	}

	llmClient, err := newLLMClient(v)
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	if v.GetBool("llm-check") {
		if err := llmClient.Ping(context.Background()); err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
	}

	var db *store.Store
	if path := v.GetString("db"); path != "" {
		if db, err = openBank(path, topicsPath, cat); err != nil {
			return err
		}
		defer db.Close()
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	h, err := handler.New(handler.Deps{
		Catalog:    cat,
		Transcript: idx,
		Prompts:    set,
		LLM:        llmClient,
		Store:      db,
	}, model.AppConfig{
		VideoURL:      v.GetString("video-url"),
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"topics", cat.Len(),
		"transcript", idx != nil,
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
		"lang", lang,
		"base_path", basePath,
	)
	return http.ListenAndServe(addr, r)
}

func newLLMClient(v *viper.Viper) (*llm.Client, error) {
	return llm.New(llm.Config{
		Provider:    llm.Provider(strings.ToLower(v.GetString("llm-provider"))),
		BaseURL:     v.GetString("llm-url"),
		APIKey:      v.GetString("llm-key"),
		Model:       v.GetString("llm-model"),
		APIVersion:  v.GetString("llm-api-version"),
		Temperature: float32(v.GetFloat64("llm-temperature")),
		Attempts:    v.GetInt("llm-attempts"),
		Timeout:     v.GetDuration("llm-timeout"),
		RetryDelay:  time.Second,
	})
}

// openBank opens the draft database and imports the topic bank into it.
func openBank(dbPath, topicsPath string, cat *catalog.Catalog) (*store.Store, error) {
	db, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	data, err := os.ReadFile(topicsPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("read topic bank: %w", err)
	}
	if _, err := db.ImportTopics(topicsPath, data, cat.Topics()); err != nil {
		db.Close()
		return nil, fmt.Errorf("import topics: %w", err)
	}
	return db, nil
}

func runExportBank(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	var (
		db  *store.Store
		err error
	)
	if topicsPath := v.GetString("topics"); topicsPath != "" {
		cat, err := catalog.Load(topicsPath)
		if err != nil {
			return fmt.Errorf("load topics: %w", err)
		}
		db, err = openBank(v.GetString("db"), topicsPath, cat)
		if err != nil {
			return err
		}
	} else if db, err = store.New(v.GetString("db")); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	n, err := db.WriteExport(w)
	if err != nil {
		return fmt.Errorf("export drafts: %w", err)
	}
	slog.Info("exported question bank", "questions", n, "output", outPath)
	return nil
}

func runTranscript(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	idx, err := transcript.Load(v.GetString("transcript"))
	if err != nil {
		return fmt.Errorf("load transcript: %w", err)
	}

	start, end := v.GetString("start"), v.GetString("end")
	if title := v.GetString("topic"); title != "" {
		if v.GetString("topics") == "" {
			return fmt.Errorf("--topic needs --topics")
		}
		cat, err := catalog.Load(v.GetString("topics"))
		if err != nil {
			return fmt.Errorf("load topics: %w", err)
		}
		i := cat.Index(title)
		if i < 0 {
			return fmt.Errorf("unknown topic %q", title)
		}
		view, err := cat.View(i, idx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), view.Excerpt)
		return err
	}

	excerpt, err := idx.Locate(start, end)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), excerpt)
	return err
}
