package banner

import "fmt"

const banner = `
 ██████╗██╗  ██╗ █████╗ ████████╗██████╗ ███████╗██╗      █████╗ ██╗   ██╗
██╔════╝██║  ██║██╔══██╗╚══██╔══╝██╔══██╗██╔════╝██║     ██╔══██╗╚██╗ ██╔╝
██║     ███████║███████║   ██║   ██████╔╝█████╗  ██║     ███████║ ╚████╔╝
██║     ██╔══██║██╔══██║   ██║   ██╔══██╗██╔══╝  ██║     ██╔══██║  ╚██╔╝
╚██████╗██║  ██║██║  ██║   ██║   ██║  ██║███████╗███████╗██║  ██║   ██║
 ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝   ╚═╝  ╚═╝╚══════╝╚══════╝╚═╝  ╚═╝   ╚═╝
`

// Print writes the startup banner and a short operator summary to stdout.
func Print(addr, dbPath, backend, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	if dbPath != "" {
		fmt.Printf("DB Path:  %s\n", dbPath)
	} else {
		fmt.Println("DB Path:  (in-memory)")
	}
	fmt.Printf("Backend:  %s\n", backend)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /chat/stream - Stream a chat completion (JSON: messages, conversationId?)")
	fmt.Println("POST /chat        - Single-shot chat completion")
	fmt.Println("GET  /threads     - List conversation threads")
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -N -X POST 'http://localhost%s/chat/stream' -d '{\"messages\":[{\"role\":\"user\",\"content\":\"hello\"}]}'\n", addr)
	fmt.Printf("curl 'http://localhost%s/threads'\n", addr)
	if backend == "fallback" {
		fmt.Println("\n== Demo mode ==================================================")
		fmt.Println("No model API key configured; responses are canned.")
		fmt.Println("Set OPENAI_API_KEY in .env to enable real completions.")
	}
}
