// Package main memoria-admin 运维命令行
//
// 用法：
//
//	memoria-admin [--config DIR] <command> [flags]
//
// 命令：
//
//	create-user   创建账号（管理员或普通用户）
//	seed-year     创建学年，可选设为激活
//	list-pending  列出待审核档案
//	approve       审核通过（或 --reject 驳回）档案
//	exports       列出、下载、删除年鉴导出
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"memoria/internal/config"
	"memoria/internal/shared/infra"
	objstore "memoria/internal/shared/minio"
	"memoria/pkg/logging"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: memoria-admin [--config DIR] <command> [flags]

Commands:
  create-user   --email E --password P [--name N] [--role admin|student|...] [--school-id S]
  seed-year     --label 2025-2026 --start 2025-06-01 --end 2026-03-31 [--active]
  list-pending  [--year ID] [--limit N]
  approve       --id PROFILE_ID [--reject --reason R] [--reviewer EMAIL]
  exports       --year ID [--download KEY --out FILE] [--delete KEY]
`)
}

func main() {
	configDir := flag.String("config", "", "配置文件目录（默认按 APP_ENV 选择）")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	if *configDir != "" {
		config.SetConfigDir(*configDir)
	}

	cfg := config.Load()
	logging.Init(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	inf, err := infra.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize infrastructure: %v", err)
	}

	a := newApp(inf.Storage, inf.Cache, inf.Bus, os.Stdout)
	if cfg.MinIO.Enabled() {
		objects, err := objstore.NewClient(cfg.MinIO)
		if err != nil {
			log.Fatalf("Failed to create MinIO client: %v", err)
		}
		a.objects = objects
	}

	err = a.run(ctx, flag.Arg(0), flag.Args()[1:])
	inf.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "memoria-admin %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}
}
