package main

import (
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/taoyao-code/zkpush-server/internal/app/bootstrap"
	"github.com/taoyao-code/zkpush-server/internal/config"
	"github.com/taoyao-code/zkpush-server/internal/logging"
)

func main() {
	// 1) .env 中的变量先进入环境，随后由 viper 读取
	_ = godotenv.Load()

	// 2) 加载配置
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	// 3) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// 4) 启动服务
	if err := bootstrap.Run(cfg, zap.L()); err != nil {
		zap.L().Error("server exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
