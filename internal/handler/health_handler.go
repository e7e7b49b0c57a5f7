package handler

import (
	"encoding/json"
	"net/http"
)

// Health は死活監視用のエンドポイント。上流APIには問い合わせない。
// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
