package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"OpsDiagnosis/internal/knowledge"
	"OpsDiagnosis/internal/models"
	"OpsDiagnosis/pkg/logger"
)

// fakeLLM 按提示词关键片段分发固定回复，模拟各个节点的模型调用。
type fakeLLM struct {
	extraction string // 症状提取节点的回复
	failAll    bool
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (string, error) {
	if f.failAll {
		return "", errors.New("模型服务不可用")
	}
	switch {
	case strings.Contains(prompt, "请分析以下用户描述的运维问题"):
		return f.extraction, nil
	case strings.Contains(prompt, "生成一个专业但友好的问题"):
		return "请问这个问题是什么时候开始出现的？", nil
	case strings.Contains(prompt, "作为资深运维工程师"):
		return `{"affected_components": ["web服务器"], "verification_steps": ["top查看进程"], "root_cause": "某进程陷入死循环导致CPU耗尽"}`, nil
	case strings.Contains(prompt, "生成具体的解决方案"):
		return "1. 执行 top 定位异常进程\n2. kill 该进程并观察负载", nil
	case strings.Contains(prompt, "是否已经解决"):
		return "请问您的问题是否已经解决？", nil
	}
	return "", errors.New("未识别的提示词")
}

type fakeRetriever struct {
	cases []models.FaultCase
	err   error
}

func (f *fakeRetriever) Search(ctx context.Context, query string, topK int) ([]models.FaultCase, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cases, nil
}

const richExtraction = `{"symptoms": ["CPU使用率高"], "error_messages": ["CPU使用率超过90%"], "time_pattern": "今天早上开始", "impact_scope": "全部用户", "problem_type": "cpu_high"}`

// 信息不足的提取结果：没有错误信息。
const sparseExtraction = `{"symptoms": [], "error_messages": [], "time_pattern": "", "impact_scope": "", "problem_type": "cpu_high"}`

func newTestEngine(llm *fakeLLM, retriever *fakeRetriever) *Engine {
	caps := Capabilities{LLM: llm, Retriever: retriever, TopK: 3}
	return NewEngine(caps, logger.New("workflow-test", "", ""))
}

func TestStepFullDiagnosisPath(t *testing.T) {
	retriever := &fakeRetriever{cases: []models.FaultCase{{
		FaultType: "cpu_high",
		Symptoms:  "CPU使用率持续超过90%",
		RootCause: "应用死循环",
		Solution:  "重启异常进程",
		Severity:  "high",
		Score:     2.5,
	}}}
	engine := newTestEngine(&fakeLLM{extraction: richExtraction}, retriever)

	sess := models.NewSession("s-full")
	got, err := engine.Step(context.Background(), sess, "服务器CPU很高，日志里全是超时")
	if err != nil {
		t.Fatalf("Step returned error: %v", err)
	}

	if got.Stage != models.StageConfirmation {
		t.Errorf("expected stage confirmation, got %s", got.Stage)
	}
	if len(got.ConfirmedSymptoms) != 1 || got.ConfirmedSymptoms[0] != "CPU使用率高" {
		t.Errorf("unexpected confirmed symptoms: %v", got.ConfirmedSymptoms)
	}
	if got.ProblemType != "cpu_high" {
		t.Errorf("expected problem type cpu_high, got %s", got.ProblemType)
	}
	if !strings.Contains(got.RetrievedKnowledge, "cpu_high") {
		t.Errorf("retrieved knowledge missing case content: %q", got.RetrievedKnowledge)
	}
	if got.RootCauseAnalysis() != "某进程陷入死循环导致CPU耗尽" {
		t.Errorf("unexpected root cause: %q", got.RootCauseAnalysis())
	}
	if !strings.Contains(got.Response, got.Solution) || !strings.Contains(got.Response, "是否已经解决") {
		t.Errorf("response should contain solution and confirmation question, got %q", got.Response)
	}
	// 首轮回复以欢迎语开头。
	if !strings.HasPrefix(got.Response, welcomeText) {
		t.Errorf("first reply should start with the welcome text, got %q", got.Response)
	}
	// 历史只增不减：用户输入和助手回复各一条。
	if len(got.History) != 2 || got.History[0].Role != models.RoleUser || got.History[1].Role != models.RoleAssistant {
		t.Errorf("unexpected history: %+v", got.History)
	}
}

func TestStepAsksClarifyingQuestion(t *testing.T) {
	engine := newTestEngine(&fakeLLM{extraction: sparseExtraction}, &fakeRetriever{})

	sess := models.NewSession("s-clarify")
	got, err := engine.Step(context.Background(), sess, "系统有点慢")
	if err != nil {
		t.Fatalf("Step returned error: %v", err)
	}

	if got.Stage != models.StageInformationCollection {
		t.Errorf("expected stage information_collection, got %s", got.Stage)
	}
	// 首轮：欢迎语在前，澄清提问在后。
	if !strings.HasPrefix(got.Response, welcomeText) || !strings.HasSuffix(got.Response, "请问这个问题是什么时候开始出现的？") {
		t.Errorf("expected welcome text followed by the clarifying question, got %q", got.Response)
	}
	// 澄清提问后本轮必须停下，不能继续向下分析。
	if got.RetrievedKnowledge != "" || got.Solution != "" {
		t.Errorf("workflow should stop after asking, knowledge=%q solution=%q", got.RetrievedKnowledge, got.Solution)
	}
}

func TestStepResumesAfterClarification(t *testing.T) {
	engine := newTestEngine(&fakeLLM{extraction: richExtraction}, &fakeRetriever{})

	sess := models.NewSession("s-resume")
	sess.Stage = models.StageInformationCollection
	sess.ProblemType = "cpu_high"
	sess.AppendMessage(models.RoleUser, "系统有点慢")
	sess.AppendMessage(models.RoleAssistant, "请问这个问题是什么时候开始出现的？")

	got, err := engine.Step(context.Background(), sess, "今天早上开始的，CPU超过90%")
	if err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	if got.Stage != models.StageConfirmation {
		t.Errorf("expected diagnosis to complete, got stage %s", got.Stage)
	}
	// 欢迎语只属于首轮。
	if strings.HasPrefix(got.Response, welcomeText) {
		t.Errorf("welcome text must not repeat on later turns, got %q", got.Response)
	}
}

func TestStepLLMFailureDegrades(t *testing.T) {
	engine := newTestEngine(&fakeLLM{failAll: true}, &fakeRetriever{})

	sess := models.NewSession("s-degrade")
	got, err := engine.Step(context.Background(), sess, "数据库连不上了")
	if err != nil {
		t.Fatalf("model failure must not abort the workflow: %v", err)
	}

	if got.ProblemType != "unknown" {
		t.Errorf("expected problem type unknown on extraction failure, got %s", got.ProblemType)
	}
	if !strings.HasSuffix(got.Response, fallbackClarifyText) {
		t.Errorf("expected fallback clarify text, got %q", got.Response)
	}
}

func TestStepKnowledgeFallback(t *testing.T) {
	engine := newTestEngine(&fakeLLM{extraction: richExtraction}, &fakeRetriever{err: errors.New("检索超时")})

	sess := models.NewSession("s-fallback")
	got, err := engine.Step(context.Background(), sess, "CPU很高")
	if err != nil {
		t.Fatalf("Step returned error: %v", err)
	}

	if got.RetrievedKnowledge != knowledge.NoKnowledgeFound {
		t.Errorf("expected fallback knowledge text, got %q", got.RetrievedKnowledge)
	}
	if got.Stage != models.StageConfirmation {
		t.Errorf("retrieval failure must not stop the workflow, got stage %s", got.Stage)
	}
}

func TestStepConfirmationSolved(t *testing.T) {
	engine := newTestEngine(&fakeLLM{extraction: richExtraction}, &fakeRetriever{})

	sess := models.NewSession("s-solved")
	sess.Stage = models.StageConfirmation
	sess.Solution = "重启进程"

	got, err := engine.Step(context.Background(), sess, "谢谢，问题解决了")
	if err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	if !got.Solved {
		t.Error("expected session marked solved")
	}
	if got.Response != solvedText {
		t.Errorf("expected solved text, got %q", got.Response)
	}
}

func TestStepConfirmationNeedsMoreHelp(t *testing.T) {
	engine := newTestEngine(&fakeLLM{extraction: richExtraction}, &fakeRetriever{})

	sess := models.NewSession("s-more")
	sess.Stage = models.StageConfirmation
	sess.ConfirmedSymptoms = []string{"内存不足"}

	got, err := engine.Step(context.Background(), sess, "还不行，服务还是很慢")
	if err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	if got.Solved {
		t.Error("session must not be marked solved")
	}
	// 回环边重新走完整诊断路径。
	if got.Stage != models.StageConfirmation {
		t.Errorf("expected diagnosis to run again to confirmation, got %s", got.Stage)
	}
	// 已确认症状集合只增不减。
	found := false
	for _, s := range got.ConfirmedSymptoms {
		if s == "内存不足" {
			found = true
		}
	}
	if !found {
		t.Errorf("previously confirmed symptom lost: %v", got.ConfirmedSymptoms)
	}
}

func TestStepConfirmationNewProblem(t *testing.T) {
	engine := newTestEngine(&fakeLLM{extraction: richExtraction}, &fakeRetriever{})

	sess := models.NewSession("s-new")
	sess.Stage = models.StageConfirmation
	sess.ProblemType = "memory_issue"
	sess.AppendMessage(models.RoleUser, "内存不足")
	sess.AppendMessage(models.RoleAssistant, "请检查堆配置")

	got, err := engine.Step(context.Background(), sess, "我的磁盘空间爆满")
	if err != nil {
		t.Fatalf("Step returned error: %v", err)
	}
	// 历史保留，问题分类重新判定，诊断重新跑到确认。
	if len(got.History) != 4 {
		t.Errorf("history must be preserved across new-problem restarts, got %d entries", len(got.History))
	}
	if got.ProblemType != "cpu_high" {
		t.Errorf("problem type should be re-derived from the new input, got %s", got.ProblemType)
	}
	if got.Stage != models.StageConfirmation {
		t.Errorf("expected new diagnosis to reach confirmation, got %s", got.Stage)
	}
}

func TestStepDoesNotMutateInputSession(t *testing.T) {
	engine := newTestEngine(&fakeLLM{extraction: richExtraction}, &fakeRetriever{})

	sess := models.NewSession("s-pure")
	_, err := engine.Step(context.Background(), sess, "CPU很高")
	if err != nil {
		t.Fatalf("Step returned error: %v", err)
	}

	if sess.Stage != models.StageWelcome || len(sess.History) != 0 || len(sess.CollectedInfo) != 0 {
		t.Errorf("input session was mutated: %+v", sess)
	}
}

func TestStepCancelledContext(t *testing.T) {
	engine := newTestEngine(&fakeLLM{extraction: richExtraction}, &fakeRetriever{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Step(ctx, models.NewSession("s-cancel"), "CPU很高"); err == nil {
		t.Error("expected error for cancelled context")
	}
}
