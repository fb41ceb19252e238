package banner

import (
	"fmt"
	"os"

	"roundtable/pkg/config"
)

func envSet(name string) bool {
	return os.Getenv(name) != ""
}

const banner = `
██████╗  ██████╗ ██╗   ██╗███╗   ██╗██████╗ ████████╗ █████╗ ██████╗ ██╗     ███████╗
██╔══██╗██╔═══██╗██║   ██║████╗  ██║██╔══██╗╚══██╔══╝██╔══██╗██╔══██╗██║     ██╔════╝
██████╔╝██║   ██║██║   ██║██╔██╗ ██║██║  ██║   ██║   ███████║██████╔╝██║     █████╗
██╔══██╗██║   ██║██║   ██║██║╚██╗██║██║  ██║   ██║   ██╔══██║██╔══██╗██║     ██╔══╝
██║  ██║╚██████╔╝╚██████╔╝██║ ╚████║██████╔╝   ██║   ██║  ██║██████╔╝███████╗███████╗
╚═╝  ╚═╝ ╚═════╝  ╚═════╝ ╚═╝  ╚═══╝╚═════╝    ╚═╝   ╚═╝  ╚═╝╚═════╝ ╚══════╝╚══════╝
`

// PrintWithEff prints the startup banner with the effective runtime
// configuration so operators see at a glance what the process resolved.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	dbPath := eff.DBPath
	if dbPath == "" && eff.Config != nil {
		dbPath = eff.Config.Server.DBPath
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config: %s\n", src)

	fmt.Println("\n== Examples ===================================================")
	fmt.Println("curl -X POST 'http://<host>:<port>/v1/topics' -d '{\"title\":\"...\",\"tags\":[\"ai\"]}'")
	fmt.Println("curl -N -X POST 'http://<host>:<port>/v1/topics/<id>/discuss' -d '{}'")

	fmt.Println("\n== Production? =================================================")
	be := 0
	fe := 0
	if eff.Config != nil {
		be = len(eff.Config.Security.APIKeys.Backend)
		fe = len(eff.Config.Security.APIKeys.Frontend)
	}
	if be > 0 {
		fmt.Printf("- Backend API keys: OK (%d)\n", be)
	} else {
		fmt.Println("- Backend API keys: MISSING (required for backend services)")
	}
	if fe > 0 {
		fmt.Printf("- Frontend API keys: OK (%d)\n", fe)
	} else {
		fmt.Println("- Frontend API keys: MISSING (required for client access)")
	}

	tlsOK := eff.Config != nil && eff.Config.Server.TLS.CertFile != "" && eff.Config.Server.TLS.KeyFile != ""
	if tlsOK {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: unconfigured")
	}

	keyOK := false
	if eff.Config != nil {
		env := eff.Config.Completion.APIKeyEnv
		keyOK = env != "" && envSet(env)
	}
	if keyOK {
		fmt.Println("- Completion API key: configured")
	} else {
		fmt.Println("- Completion API key: MISSING (personas will fall back to canned replies)")
	}

	if eff.Config != nil && eff.Config.Autonomous.Enabled {
		fmt.Printf("- Autonomous actors: enabled (cron=%s)\n", eff.Config.Autonomous.Cron)
	} else {
		fmt.Println("- Autonomous actors: disabled")
	}

	fmt.Println("\n== Logs: =================================================")
}
