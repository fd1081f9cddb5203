package types

// Working modes accepted by the texture backend.
const (
	TextureModeAI     = "ai"
	TextureModeManual = "manual"
)

type TextureJob struct {
	TaskID      string `json:"taskId"`
	FileName    string `json:"fileName"`
	RawKey      string `json:"rawKey"`
	TextureMode string `json:"textureMode"`
	TextureSize int    `json:"textureSize"`
	CreatedAt   string `json:"createdAt"`
}

type JobMessage struct {
	Pattern string     `json:"pattern"`
	Data    TextureJob `json:"data"`
}
