package domain

// Model is one entry of the fixed tier catalog the user picks from.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ModelKey    string `json:"model_key"`
	Icon        string `json:"icon"`
	Thinking    bool   `json:"thinking"`
}

const (
	ModelFast    = "fast"
	ModelPlus    = "plus"
	ModelPro     = "pro"
	ModelSmart   = "smart"
	ModelCreator = "creator"
)

// Models is the catalog, in display order. The first entry is the default.
var Models = []Model{
	{ID: ModelFast, Name: "מהיר", Description: "ברירת מחדל ותגובה מיידית", ModelKey: "gemini-3-flash-preview", Icon: "⚡"},
	{ID: ModelPlus, Name: "פלוס", Description: "שיפור ביכולות ואיזון מושלם", ModelKey: "gemini-3-flash-preview", Icon: "✨"},
	{ID: ModelPro, Name: "פרו", Description: "ביצועים גבוהים למשימות מורכבות", ModelKey: "gemini-3-pro-preview", Icon: "💎"},
	{ID: ModelSmart, Name: "חכם", Description: "הכי טוב - יכולות חשיבה מעמיקות", ModelKey: "gemini-3-pro-preview", Icon: "🧠", Thinking: true},
	{ID: ModelCreator, Name: "יוצר", Description: "יצירת תמונות, וידאו, קוד ותוכן יצירתי", ModelKey: "gemini-3-pro-image-preview", Icon: "🎨"},
}

// DefaultModel returns the tier a fresh conversation starts with.
func DefaultModel() Model {
	return Models[0]
}

// ModelByID looks up a catalog entry. The second return is false for
// unknown ids.
func ModelByID(id string) (Model, bool) {
	for _, m := range Models {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}
