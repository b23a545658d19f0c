package main

import (
	"context"
	"flag"
	"log"
	"time"

	"OpsDiagnosis/internal/config"
	"OpsDiagnosis/internal/database/mongo"
	"OpsDiagnosis/internal/knowledge"
)

// knowledge_sync 将内置示例故障案例写入知识库并确保全文索引存在。
// 可重复执行：案例按 fault_type 做幂等 upsert。
func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	mongoClient, err := mongo.GetClient(&cfg.Databases.MongoDB)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer mongo.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := mongoClient.Database(cfg.Databases.MongoDB.Database)
	synced, err := knowledge.SyncSampleCases(ctx, db, cfg.Knowledge.Collection)
	if err != nil {
		log.Fatalf("Failed to sync sample fault cases: %v", err)
	}

	log.Printf("✅ 已同步 %d 条示例故障案例到集合 '%s'", synced, cfg.Knowledge.Collection)
}
