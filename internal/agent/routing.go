package agent

import "github.com/wwwzy/MongoAgent/internal/translate"

// 以下路由函数只读状态，不做任何外部调用。

// isPivotState 未检测出语言时按枢轴语言处理。
func isPivotState(state AgentState) bool {
	return state.OriginalLanguage == "" || translate.IsPivot(state.OriginalLanguage)
}

// RouteAfterDetect 非枢轴语言先翻译再分类。
func RouteAfterDetect(state AgentState) string {
	if isPivotState(state) {
		return NodeClassifyIntent
	}
	return NodeTranslateIn
}

// RouteIntent 按意图分流；未分类视同业务查询。
func RouteIntent(state AgentState) string {
	if state.Intent == IntentGeneralConversation {
		return NodeConversationReply
	}
	return NodeQueryUnderstand
}

// RouteAfterUnderstand 解析阶段已产生失败结果时跳过执行。
func RouteAfterUnderstand(state AgentState) string {
	if state.QueryResult != nil && !state.QueryResult.Success {
		return NodeFormat
	}
	return NodeExecute
}

func RouteAfterAnswer(state AgentState) string {
	if isPivotState(state) {
		return NodeOutput
	}
	return NodeTranslateOut
}
