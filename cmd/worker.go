package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"Videoflix/cache"
	"Videoflix/config"
	"Videoflix/core/hls"
	"Videoflix/db"
	"Videoflix/logger"
	"Videoflix/queue"
	"Videoflix/repository"

	"github.com/spf13/cobra"
)

var workerCount int

// workerCmd 独立运行转码工作池，可以和server进程分开部署。
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "启动转码工作进程",
	Long:  `只启动转码工作池，从Redis队列消费任务。适合把转码负载放到单独的机器上。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()

		logger.InitLogger(logger.Config{
			Level:      logger.InfoLevel,
			OutputPath: "logs/videoflix-worker.log",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		})

		if err := db.ConnectDB(cfg); err != nil {
			logger.Fatal("连接数据库失败", logger.ErrorField(err))
		}
		defer db.DB.Close()

		if err := cache.ConnectRedis(cfg); err != nil {
			logger.Fatal("连接Redis失败", logger.ErrorField(err))
		}
		defer cache.CloseRedis()

		renditions := hls.NewStore(cfg.MediaRoot)
		store := cache.NewRedisStore(cache.RedisClient)
		videoCache := cache.NewVideoCache(store, renditions)
		videoRepo := repository.NewMySQLVideoRepository(db.DB)

		transcoder := hls.NewFFmpegTranscoder(cfg.FFmpegPath, renditions, cfg.FFmpegTimeout)
		jobs := queue.NewRedisQueue(cache.RedisClient)
		notifier := queue.NewRedisNotifier(cache.RedisClient)

		size := cfg.WorkerCount
		if workerCount > 0 {
			size = workerCount
		}
		pool := queue.NewPool(jobs, transcoder, videoRepo, videoCache, notifier, queue.NewVideoLocker(), size)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := pool.Start(ctx); err != nil {
			logger.Fatal("启动转码工作池失败", logger.ErrorField(err))
		}

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		logger.Info("正在停止工作池...")
		cancel()
		pool.Stop()
		logger.Info("工作池已停止")
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().IntVarP(&workerCount, "workers", "w", 0, "工作协程数量，0表示使用配置值")
}
