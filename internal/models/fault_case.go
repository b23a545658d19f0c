package models

// FaultCase 是知识库中的一条历史故障案例。
type FaultCase struct {
	FaultType string  `bson:"fault_type" json:"fault_type"`
	Symptoms  string  `bson:"symptoms" json:"symptoms"`
	RootCause string  `bson:"root_cause" json:"root_cause"`
	Solution  string  `bson:"solution" json:"solution"`
	Severity  string  `bson:"severity" json:"severity"`
	Score     float64 `bson:"score,omitempty" json:"score"`
}
