package knowledge

import (
	"context"
	"fmt"
	"strings"

	"OpsDiagnosis/internal/models"
	"OpsDiagnosis/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// NoKnowledgeFound 是知识库检索失败或无结果时的固定兜底文本。
const NoKnowledgeFound = "知识库中没有找到相关的故障案例。"

// Retriever 定义了工作流节点消费的知识检索接口。
// 返回的案例按相关度降序排列；实现失败时调用方必须降级为固定兜底文本。
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]models.FaultCase, error)
}

// MongoRetriever 基于 MongoDB 全文索引检索历史故障案例。
type MongoRetriever struct {
	coll   *mongo.Collection
	topK   int
	logger *logger.Logger
}

// NewMongoRetriever 创建一个新的 MongoRetriever。
func NewMongoRetriever(db *mongo.Database, collection string, topK int, logger *logger.Logger) *MongoRetriever {
	if topK <= 0 {
		topK = 3
	}
	return &MongoRetriever{
		coll:   db.Collection(collection),
		topK:   topK,
		logger: logger,
	}
}

// Search 在故障案例集合上执行全文检索，按文本相关度降序返回最多 topK 条案例。
func (r *MongoRetriever) Search(ctx context.Context, query string, topK int) ([]models.FaultCase, error) {
	if topK <= 0 {
		topK = r.topK
	}

	filter := bson.M{"$text": bson.M{"$search": query}}
	opts := options.Find().
		SetProjection(bson.M{
			"fault_type": 1,
			"symptoms":   1,
			"root_cause": 1,
			"solution":   1,
			"severity":   1,
			"score":      bson.M{"$meta": "textScore"},
		}).
		SetSort(bson.M{"score": bson.M{"$meta": "textScore"}}).
		SetLimit(int64(topK))

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("知识检索失败: %w", err)
	}
	defer cursor.Close(ctx)

	var cases []models.FaultCase
	if err := cursor.All(ctx, &cases); err != nil {
		return nil, fmt.Errorf("知识检索结果解析失败: %w", err)
	}

	r.logger.WithPayload(map[string]interface{}{
		"query": query,
		"hits":  len(cases),
	}).Debug("知识检索完成")

	return cases, nil
}

// FormatKnowledge 将检索到的故障案例格式化为提示词可用的文本。
// 案例为空时返回固定兜底文本，保证工作流不因检索结果缺失而中断。
func FormatKnowledge(cases []models.FaultCase) string {
	if len(cases) == 0 {
		return NoKnowledgeFound
	}

	var sb strings.Builder
	sb.WriteString("基于知识库中的相关故障案例，以下信息可能对诊断有帮助：\n\n")
	for i, c := range cases {
		sb.WriteString(fmt.Sprintf("【案例 %d - %s (相关度: %.2f)】\n", i+1, c.FaultType, c.Score))
		sb.WriteString(fmt.Sprintf("故障现象: %s\n", c.Symptoms))
		sb.WriteString(fmt.Sprintf("可能原因: %s\n", c.RootCause))
		sb.WriteString(fmt.Sprintf("解决方案: %s\n", c.Solution))
		sb.WriteString(fmt.Sprintf("严重程度: %s\n", c.Severity))
		sb.WriteString(strings.Repeat("─", 50) + "\n")
	}
	return sb.String()
}

// EnsureTextIndex 确保故障案例集合上存在加权全文索引。
// symptoms 字段权重最高，其次是 fault_type。
func EnsureTextIndex(ctx context.Context, db *mongo.Database, collection string) error {
	model := mongo.IndexModel{
		Keys: bson.D{
			{Key: "symptoms", Value: "text"},
			{Key: "fault_type", Value: "text"},
			{Key: "root_cause", Value: "text"},
		},
		Options: options.Index().
			SetName("fault_cases_text").
			SetWeights(bson.M{
				"symptoms":   3,
				"fault_type": 2,
				"root_cause": 1,
			}),
	}

	if _, err := db.Collection(collection).Indexes().CreateOne(ctx, model); err != nil {
		return fmt.Errorf("创建全文索引失败: %w", err)
	}
	return nil
}
