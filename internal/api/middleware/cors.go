// cors.go — разрешительный CORS для API Vault Module.
// Внешняя поверхность сервиса потребляется браузерными клиентами с
// произвольных origin: отражаем origin запроса, разрешаем credentials.
// Preflight (OPTIONS) отвечает 200 ДО аутентификации — браузер не
// присылает Authorization в preflight-запросе.
package middleware

import "net/http"

// CORS возвращает middleware, добавляющий CORS-заголовки ко всем
// ответам и завершающий OPTIONS-запросы статусом 200.
func CORS() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = "*"
			}
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
