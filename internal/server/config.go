package server

import (
	"context"
	"fmt"
	"time"

	mid "github.com/Quantum-369/arxiv-scribe-view/internal/server/middleware"
	"github.com/Quantum-369/arxiv-scribe-view/internal/storage"
	"github.com/Quantum-369/arxiv-scribe-view/internal/util"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/ai"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/ai/ollama"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/ai/openai"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/extract"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/loader"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/loader/fitz"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/loader/pdf"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/loader/poppler"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/loader/web"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/logger"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/paper"
	"github.com/Quantum-369/arxiv-scribe-view/pkg/render"

	"golang.org/x/sync/singleflight"
)

// NewApp wires the services from environment variables.
func NewApp(ctx context.Context) (*mid.App, error) {
	fetcher := NewFetcher()

	textDecoder, err := NewDecoder(util.GetEnvString("PDF_TEXT_BACKEND", "pdf"))
	if err != nil {
		return nil, err
	}
	renderDecoder, err := NewRenderDecoder(util.GetEnvString("PDF_RENDER_BACKEND", "fitz"))
	if err != nil {
		return nil, err
	}

	pages, err := newPageStore(ctx)
	if err != nil {
		return nil, err
	}

	extractCfg := ExtractConfig()
	engine := extract.NewEngine(extract.NewEngineParams{
		Fetcher: fetcher,
		Decoder: textDecoder,
		Config:  extractCfg,
	})

	pipeline := render.NewPipeline(render.NewPipelineParams{
		Fetcher: fetcher,
		Decoder: renderDecoder,
		Sink:    pages,
		Config:  RenderConfig(),
	})

	var assistant *paper.Assistant
	chat, err := newChatClient()
	if err != nil {
		return nil, err
	}
	if chat != nil {
		assistant = paper.NewAssistant(paper.NewAssistantParams{
			Client:      chat,
			TokenBudget: int(util.GetEnvNumeric("AI_GROUNDING_TOKENS", 100000)),
			Thinking:    util.GetEnv("AI_THINKING"),
		})
	} else {
		logger.Info("[Server] no chat backend configured, /api/chat is disabled")
	}

	logger.Info("[Server] services configured",
		"text_backend", textDecoder.Name(),
		"render_backend", renderDecoder.Name(),
		"proxies", fetcher.Strategies(),
		"page_cap", extractCfg.PageCap,
	)

	return &mid.App{
		Engine:      engine,
		Pipeline:    pipeline,
		Pages:       pages,
		Assistant:   assistant,
		Extractions: &singleflight.Group{},
	}, nil
}

// ExtractConfig reads the extraction settings. PDF_PAGE_CAP=0 lifts the cap.
func ExtractConfig() extract.Config {
	pageCap := int(util.GetEnvNumeric("PDF_PAGE_CAP", extract.DefaultPageCap))
	if pageCap == 0 {
		pageCap = -1
	}
	return extract.Config{
		PageCap:       pageCap,
		BatchSize:     int(util.GetEnvNumeric("PDF_BATCH_SIZE", extract.DefaultBatchSize)),
		PageTimeout:   util.GetEnvDuration("PDF_PAGE_TIMEOUT", extract.DefaultPageTimeout),
		DecodeTimeout: util.GetEnvDuration("PDF_DECODE_TIMEOUT", extract.DefaultDecodeTimeout),
		JobTimeout:    util.GetEnvDuration("PDF_JOB_TIMEOUT", extract.DefaultJobTimeout),
	}
}

func RenderConfig() render.Config {
	return render.Config{
		Scale:         util.GetEnvNumeric("PDF_RENDER_SCALE", 0),
		PageTimeout:   util.GetEnvDuration("PDF_PAGE_TIMEOUT", render.DefaultPageTimeout),
		DecodeTimeout: util.GetEnvDuration("PDF_DECODE_TIMEOUT", render.DefaultDecodeTimeout),
		JobTimeout:    util.GetEnvDuration("PDF_RENDER_TIMEOUT", render.DefaultJobTimeout),
	}
}

func NewFetcher() *web.Fetcher {
	var proxies []web.Proxy
	if list := util.GetEnvList("PDF_PROXIES", nil); list != nil {
		proxies = web.ParseProxies(list)
	}
	return web.NewFetcher(web.NewFetcherParams{
		Proxies:  proxies,
		Timeout:  util.GetEnvDuration("PDF_FETCH_TIMEOUT", web.DefaultTimeout),
		Attempts: int(util.GetEnvNumeric("PDF_FETCH_ATTEMPTS", 2)),
		Backoff:  util.GetEnvDuration("PDF_FETCH_BACKOFF", 500*time.Millisecond),
	})
}

// NewRenderDecoder is NewDecoder restricted to backends that rasterize.
func NewRenderDecoder(name string) (loader.Decoder, error) {
	dec, err := NewDecoder(name)
	if err != nil {
		return nil, err
	}
	if !dec.CanRender() {
		return nil, fmt.Errorf("PDF backend %q cannot render pages", dec.Name())
	}
	return dec, nil
}

func NewDecoder(name string) (loader.Decoder, error) {
	switch name {
	case "pdf":
		return pdf.NewDecoder(), nil
	case "fitz":
		return fitz.NewDecoder(), nil
	case "poppler":
		dec := poppler.NewDecoder(poppler.Config{BinDir: util.GetEnv("POPPLER_BIN_DIR")})
		if err := dec.Available(); err != nil {
			return nil, fmt.Errorf("poppler backend unavailable: %w", err)
		}
		return dec, nil
	default:
		return nil, fmt.Errorf("unknown PDF backend %q", name)
	}
}

func newPageStore(ctx context.Context) (mid.PageStore, error) {
	switch sink := util.GetEnvString("RENDER_SINK", "memory"); sink {
	case "memory":
		return render.NewMemorySink(int(util.GetEnvNumeric("RENDER_MEMORY_JOBS", render.DefaultMemoryJobs))), nil
	case "s3":
		client, err := storage.NewS3Client(ctx, storage.S3Config{
			Region:    util.GetEnv("AWS_REGION"),
			Endpoint:  util.GetEnv("AWS_ENDPOINT"),
			AccessKey: util.GetEnv("AWS_ACCESS_KEY"),
			SecretKey: util.GetEnv("AWS_SECRET_KEY"),
		})
		if err != nil {
			return nil, err
		}
		bucket := util.GetEnv("AWS_BUCKET")
		if bucket == "" {
			return nil, fmt.Errorf("RENDER_SINK=s3 requires AWS_BUCKET")
		}
		return storage.NewS3Sink(storage.NewS3SinkParams{
			Client:         client,
			Bucket:         bucket,
			PublicEndpoint: util.GetEnv("AWS_PUBLIC_ENDPOINT"),
		}), nil
	default:
		return nil, fmt.Errorf("unknown RENDER_SINK %q", sink)
	}
}

func newChatClient() (ai.ChatClient, error) {
	model := util.GetEnv("AI_CHAT_MODEL")

	switch adapter := util.GetEnvString("AI_ADAPTER", "openai"); adapter {
	case "ollama":
		if model == "" {
			return nil, nil
		}
		client, err := ollama.NewChatOllamaClient(ollama.NewChatOllamaClientParams{
			ChatModel:     model,
			ContextTokens: int(util.GetEnvNumeric("AI_CONTEXT_TOKENS", 0)),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 4)),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return client, nil
	case "openai":
		client := openai.NewChatOpenAIClient(openai.NewChatOpenAIClientParams{
			ChatModel: util.GetEnvString("AI_CHAT_MODEL", "gpt-4o-mini"),
			ChatURL:   util.GetEnv("AI_CHAT_URL"),
			ChatKey:   util.GetEnv("AI_CHAT_KEY"),
		})
		if client == nil {
			return nil, nil
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown AI_ADAPTER %q", adapter)
	}
}
