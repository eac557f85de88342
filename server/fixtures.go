package server

// Static records served to test harnesses. They never touch the
// completion service.

type mockTranslation struct {
	ID          int    `json:"id"`
	Original    string `json:"original"`
	Translation string `json:"translation"`
	SourceLang  string `json:"source_lang"`
	TargetLang  string `json:"target_lang"`
}

type mockConversation struct {
	UserID   string      `json:"user_id"`
	Messages []chatTurn  `json:"messages"`
	Sample   mockRequest `json:"sample_request"`
}

type mockRequest struct {
	Message    string `json:"message"`
	SourceLang string `json:"source_lang"`
	UserID     string `json:"user_id"`
}

var mockData = struct {
	Translations []mockTranslation `json:"translations"`
	Conversation mockConversation  `json:"conversation"`
}{
	Translations: []mockTranslation{
		{1, "Xin chào", "こんにちは", "vi", "ja"},
		{2, "Cảm ơn bạn rất nhiều", "どうもありがとうございます", "vi", "ja"},
		{3, "おはようございます", "Chào buổi sáng", "ja", "vi"},
		{4, "日本語を勉強しています", "Tôi đang học tiếng Nhật", "ja", "vi"},
	},
	Conversation: mockConversation{
		UserID: "demo_user",
		Messages: []chatTurn{
			{Role: "user", Content: "Tôi đã chi 100 đô la cho 3 ngày công tác."},
			{Role: "assistant", Content: "出張3日間で100ドルを使いました。払い戻し総額は250ドルです。"},
		},
		Sample: mockRequest{
			Message:    "Tôi đi công tác 2 ngày, chi phí 80 đô la.",
			SourceLang: "auto",
			UserID:     "demo_user",
		},
	},
}

var batchMock = []mockTranslation{
	{1, "Xin chào", "こんにちは", "vi", "ja"},
	{2, "こんにちは", "Xin chào", "ja", "vi"},
	{3, "Cảm ơn bạn", "ありがとう", "vi", "ja"},
}
