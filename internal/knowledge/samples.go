package knowledge

import (
	"context"
	"fmt"

	"OpsDiagnosis/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SampleFaultCases 是知识库的内置示例故障案例，由 knowledge_sync 工具写入。
var SampleFaultCases = []models.FaultCase{
	{
		FaultType: "high_cpu_usage",
		Symptoms:  "服务器CPU使用率持续高于90%，系统响应缓慢，用户请求超时，top命令显示某个进程占用大量CPU资源",
		RootCause: "Java应用程序内存泄漏导致频繁GC，或者存在死循环代码，或者是数据库查询没有索引导致全表扫描",
		Solution:  "1. 使用top命令找出CPU占用最高的进程\n2. 使用ps aux --sort=-%cpu查看详细进程信息\n3. 使用jstack分析Java进程线程状态\n4. 检查应用程序日志查找异常\n5. 优化数据库查询，添加缺失索引\n6. 考虑增加CPU资源或优化代码逻辑",
		Severity:  "high",
	},
	{
		FaultType: "memory_leak",
		Symptoms:  "服务器内存使用率不断上升，最终触发OOM Killer，系统开始杀死进程，free命令显示可用内存持续减少",
		RootCause: "应用程序存在内存泄漏，未正确释放内存对象，或者缓存设置不合理导致内存耗尽",
		Solution:  "1. 使用free -h查看内存使用情况\n2. 使用ps aux --sort=-%mem查看内存占用最高的进程\n3. 使用jstat监控Java堆内存使用\n4. 分析heap dump文件定位内存泄漏点\n5. 调整JVM内存参数-Xmx -Xms\n6. 检查缓存配置和缓存淘汰策略",
		Severity:  "high",
	},
	{
		FaultType: "disk_space_full",
		Symptoms:  "磁盘使用率100%，无法写入新文件，应用程序报错No space left on device，日志文件无法滚动",
		RootCause: "日志文件未及时清理，大文件占用空间，或者数据库文件增长过快",
		Solution:  "1. 使用df -h查看磁盘使用情况\n2. 使用du -sh /* | sort -rh查找大目录\n3. 清理/var/log/目录下的旧日志文件\n4. 检查应用程序日志输出配置\n5. 清理Docker镜像和容器缓存\n6. 设置日志轮转和自动清理策略",
		Severity:  "critical",
	},
	{
		FaultType: "network_latency",
		Symptoms:  "网络延迟高，ping响应时间超过100ms，TCP重传率高，用户访问网站缓慢",
		RootCause: "网络带宽不足，DNS解析慢，或者中间网络设备故障",
		Solution:  "1. 使用ping测试基础网络延迟\n2. 使用traceroute查看路由路径\n3. 使用mtr进行持续网络质量监测\n4. 检查DNS解析时间\n5. 使用iftop查看网络流量\n6. 联系网络运营商检查链路质量",
		Severity:  "medium",
	},
	{
		FaultType: "database_connection_pool_full",
		Symptoms:  "数据库连接池满，应用程序报错Cannot get connection，新的数据库连接请求被拒绝",
		RootCause: "数据库连接未正确释放，或者连接池配置过小，或者存在慢查询占用连接时间过长",
		Solution:  "1. 检查数据库当前连接数\n2. 查看连接池监控指标\n3. 分析慢查询日志优化SQL\n4. 调整连接池最大连接数配置\n5. 设置合理的连接超时时间\n6. 确保代码中正确关闭数据库连接",
		Severity:  "high",
	},
	{
		FaultType: "service_crash",
		Symptoms:  "关键服务进程突然崩溃，系统日志显示Segmentation fault或OutOfMemoryError，服务不可用",
		RootCause: "内存访问越界，资源耗尽，或者依赖服务不可用",
		Solution:  "1. 检查系统日志/var/log/messages\n2. 查看应用程序崩溃日志\n3. 分析core dump文件\n4. 检查系统资源使用情况\n5. 验证依赖服务状态\n6. 配置服务自动重启机制",
		Severity:  "critical",
	},
	{
		FaultType: "slow_database_query",
		Symptoms:  "数据库查询响应慢，应用程序超时，CPU和IO等待高，用户体验差",
		RootCause: "缺少合适的索引，SQL写法不合理，或者数据库统计信息过时",
		Solution:  "1. 使用EXPLAIN分析慢查询执行计划\n2. 检查表索引情况\n3. 优化SQL语句，避免SELECT *\n4. 添加缺失的索引\n5. 更新数据库统计信息\n6. 考虑读写分离或分库分表",
		Severity:  "medium",
	},
	{
		FaultType: "file_descriptor_exhausted",
		Symptoms:  "无法打开新文件或网络连接，报错Too many open files，服务功能受限",
		RootCause: "文件描述符限制过低，或者程序存在文件描述符泄漏",
		Solution:  "1. 使用lsof查看打开的文件描述符\n2. 检查ulimit配置\n3. 调整系统文件描述符限制\n4. 检查应用程序文件操作代码\n5. 重启受影响的服务\n6. 监控文件描述符使用趋势",
		Severity:  "high",
	},
	{
		FaultType: "ssl_certificate_expired",
		Symptoms:  "HTTPS网站无法访问，浏览器显示证书错误，SSL握手失败",
		RootCause: "SSL证书过期，或者证书链配置不正确",
		Solution:  "1. 检查SSL证书过期时间\n2. 更新过期证书\n3. 验证证书链完整性\n4. 重新配置Web服务器SSL设置\n5. 测试HTTPS访问\n6. 设置证书过期监控告警",
		Severity:  "critical",
	},
	{
		FaultType: "load_balancer_issue",
		Symptoms:  "部分用户无法访问服务，负载均衡器健康检查失败，后端服务器状态异常",
		RootCause: "后端服务健康检查端点不可用，或者网络分区，或者负载均衡器配置错误",
		Solution:  "1. 检查负载均衡器配置\n2. 验证后端服务健康状态\n3. 检查网络连通性\n4. 查看负载均衡器日志\n5. 测试健康检查端点\n6. 调整健康检查参数",
		Severity:  "high",
	},
}

// SyncSampleCases 将内置示例案例写入知识库集合并确保全文索引存在。
// 按 fault_type 幂等 upsert，重复执行不会产生重复案例。
func SyncSampleCases(ctx context.Context, db *mongo.Database, collection string) (int, error) {
	if err := EnsureTextIndex(ctx, db, collection); err != nil {
		return 0, err
	}

	coll := db.Collection(collection)
	synced := 0
	for _, c := range SampleFaultCases {
		filter := bson.M{"fault_type": c.FaultType}
		update := bson.M{"$set": bson.M{
			"fault_type": c.FaultType,
			"symptoms":   c.Symptoms,
			"root_cause": c.RootCause,
			"solution":   c.Solution,
			"severity":   c.Severity,
		}}
		if _, err := coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
			return synced, fmt.Errorf("写入示例案例 '%s' 失败: %w", c.FaultType, err)
		}
		synced++
	}
	return synced, nil
}
