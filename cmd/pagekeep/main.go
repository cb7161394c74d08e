package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pagekeep/internal/extract"
	"pagekeep/internal/images"
	"pagekeep/internal/queue"
	"pagekeep/internal/reaper"
	web "pagekeep/internal/server"
	"pagekeep/internal/store"
	"pagekeep/internal/tracker"
	"pagekeep/internal/worker"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	logger      *zap.Logger
	redisAddr   string
	badgerPath  string
	assetDir    string
	listenAddr  string
	concurrency int
	maxAttempts int
	retryDelay  time.Duration
	stuckAfter  time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "pagekeep",
	Short: "pagekeep - A self-hosted read-it-later article manager",
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the extraction workers and web server",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Setup Signal Handling (Ctrl+C)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		// Setup Manual 'q' input handling
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				if scanner.Text() == "q" {
					fmt.Println(" 'q' pressed. Stopping...")
					cancel()
					return
				}
			}
		}()

		go func() {
			<-sigChan
			logger.Info("Shutting down...")
			cancel()
		}()

		// Everything is constructed once here and injected; no package
		// level singletons.
		st, err := store.NewHybridStore(redisAddr, badgerPath)
		if err != nil {
			logger.Fatal("Failed to init store", zap.Error(err))
		}
		defer st.Close()

		pipeline, err := images.NewPipeline(assetDir, logger)
		if err != nil {
			logger.Fatal("Failed to init image pipeline", zap.Error(err))
		}

		extractor := extract.New(pipeline, logger)
		tr := tracker.New(st, logger)
		w := worker.New(tr, extractor, logger)

		q := queue.New(queue.Config{
			Concurrency: concurrency,
			MaxAttempts: maxAttempts,
			RetryDelay:  retryDelay,
		}, logger)
		q.Register(queue.KindExtractArticle, w.HandleExtract)
		q.Start(ctx)

		rp := reaper.New(st, tr, q, stuckAfter, logger)

		// Recover anything a previous process left mid-extraction.
		if n, err := rp.CleanupStuck(ctx); err != nil {
			logger.Error("Startup cleanup failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("Recovered stuck extractions", zap.Int("count", n))
		}

		srv := web.NewServer(st, q, rp, assetDir, logger)
		go func() {
			if err := srv.Start(listenAddr); err != nil && err != http.ErrServerClosed {
				logger.Error("Server stopped", zap.Error(err))
				cancel()
			}
		}()

		logger.Info("Server running.")
		fmt.Println("Press 'q' + Enter or Ctrl+C to stop.")

		// Block until shutdown
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("Shutdown error", zap.Error(err))
		}
		q.Wait()
		logger.Info("Goodbye!")
	},
}

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Queue a URL for extraction on a running server",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		body, err := json.Marshal(map[string]string{"url": args[0]})
		if err != nil {
			logger.Fatal("Failed to build request", zap.Error(err))
		}

		resp, err := http.Post(
			fmt.Sprintf("http://localhost%s/articles", listenAddr),
			"application/json",
			bytes.NewReader(body))
		if err != nil {
			logger.Fatal("Is the server running?", zap.Error(err))
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusAccepted {
			msg, _ := io.ReadAll(resp.Body)
			logger.Fatal("Server rejected URL",
				zap.Int("status", resp.StatusCode),
				zap.String("body", string(msg)))
		}

		logger.Info("Article queued", zap.String("url", args[0]))
	},
}

func main() {
	var err error
	logger, err = zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "localhost:6379", "Address of Redis server")
	rootCmd.PersistentFlags().StringVar(&badgerPath, "badger", "./badger-data", "Path to BadgerDB data directory")
	rootCmd.PersistentFlags().StringVar(&assetDir, "assets", "./assets", "Directory for cached images")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "addr", ":3000", "HTTP listen address")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 2, "Concurrent extraction workers")
	rootCmd.PersistentFlags().IntVar(&maxAttempts, "max-attempts", 3, "Attempts per extraction job")
	rootCmd.PersistentFlags().DurationVar(&retryDelay, "retry-delay", 5*time.Second, "Delay between job attempts")
	rootCmd.PersistentFlags().DurationVar(&stuckAfter, "stuck-after", reaper.DefaultStuckThreshold, "Age before an extracting article is considered stuck")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(addCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
