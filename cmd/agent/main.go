// agent es el agente local de referencia para la firma con clé USB / certificado .p12.
//
// Uso: agent -uri "facturetn-agent://sign?server=…&token=…" -p12 cert.p12 -password …
// La contraseña también puede venir de AGENT_P12_PASSWORD.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/jhoicas/facturetn-api/internal/agent"
	"github.com/jhoicas/facturetn-api/pkg/logger"
)

func main() {
	uri := flag.String("uri", "", "deep link recibido del navegador")
	p12 := flag.String("p12", "", "ruta del certificado .p12/.pfx")
	password := flag.String("password", os.Getenv("AGENT_P12_PASSWORD"), "contraseña del .p12")
	timeout := flag.Duration("timeout", 30*time.Second, "límite de cada llamada a la API")
	level := flag.String("log-level", "info", "nivel de log")
	flag.Parse()

	log := logger.New(logger.Config{Env: "development", Level: *level})

	if *uri == "" && flag.NArg() > 0 {
		*uri = flag.Arg(0)
	}
	link, err := agent.ParseLink(*uri)
	if err != nil {
		log.Fatal().Err(err).Msg("deep link inválido")
	}
	if *p12 == "" {
		log.Fatal().Msg("-p12 es obligatorio")
	}
	kp, err := agent.LoadP12(*p12, *password)
	if err != nil {
		log.Fatal().Err(err).Msg("certificado")
	}
	log.Info().
		Str("action", link.Action).
		Str("server", link.Server).
		Str("environment", link.Environment).
		Str("subject", kp.Cert.Subject.CommonName).
		Msg("agente iniciado")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := agent.NewClient(*timeout, log.Component("agent"))
	if err := client.Run(ctx, link, kp); err != nil {
		log.Fatal().Err(err).Msg("operación del agente")
	}
}
