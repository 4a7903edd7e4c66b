package preview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"betsyMixer/internal/logging"
)

const page = `<!doctype html>
<html><head><meta charset="utf-8"><title>betsyMixer</title>
<style>body{background:#111;margin:0}canvas{image-rendering:pixelated;width:100vw}</style>
</head><body><canvas id="c"></canvas><script>
const c = document.getElementById("c"), g = c.getContext("2d");
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.binaryType = "arraybuffer";
ws.onmessage = (e) => {
  const v = new DataView(e.data), w = v.getUint16(0), h = v.getUint16(2);
  c.width = w; c.height = h;
  const img = g.createImageData(w, h), src = new Uint8Array(e.data, 4);
  for (let i = 0, j = 0; i < w * h; i++, j += 3) {
    img.data[i*4] = src[j]; img.data[i*4+1] = src[j+1]; img.data[i*4+2] = src[j+2]; img.data[i*4+3] = 255;
  }
  g.putImageData(img, 0, 0);
};
</script></body></html>`

func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
	})
	return mux
}

// Serve écoute sur addr jusqu'à l'annulation du contexte.
func (h *Hub) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: h.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logging.L().Info("Preview: serveur HTTP prêt", "adresse", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serveur d'aperçu: %w", err)
	}
	return nil
}
