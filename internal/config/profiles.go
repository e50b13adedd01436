/*
PURPOSE:
  Built-in model profiles for the SGLang benchmark setup.

IMPLEMENTATION RULES:
  - Values match the existing client and server scripts.
  - A profile in the config file replaces the one here.

RELATED FILES:
  - internal/config/config.go
*/

package config

const (
	grok1Tokenizer     = "/data/Xenova/grok-1-tokenizer/"
	grok2Tokenizer     = "/data2/grok-2/tokenizer.tok.json"
	clientIdentity     = "{{.model}}_{{.rate}}_{{.num_prompts}}_run{{.run}}"
	clientRunLog       = "sglang_client_log_{{.model_lower}}_{{.rate}}_max{{.max_prompts}}_run{{.run}}_{{.timestamp}}.log"
	numPromptsPerRate  = "{{min (mul 300 .rate) .max_prompts}}"
	launchServerModule = "sglang.launch_server"
)

func benchServingArgs(inputLen, tokenizer, outputFile string) []string {
	return []string{
		"-m", "sglang.bench_serving",
		"--backend", "sglang",
		"--dataset-name", "random",
		"--random-input", inputLen,
		"--random-output", "1024",
		"--num-prompts", "{{.num_prompts}}",
		"--tokenizer", tokenizer,
		"--request-rate", "{{.rate}}",
		"--output-file", outputFile,
	}
}

func clientProfile(inputLen, tokenizer, outputFile string) *ClientProfile {
	return &ClientProfile{
		Program:  "python3",
		Args:     benchServingArgs(inputLen, tokenizer, outputFile),
		Vars:     []VarConfig{{Name: "num_prompts", Value: numPromptsPerRate}},
		Identity: clientIdentity,
		RunLog:   clientRunLog,
	}
}

func serverProfile(modelPath, tokenizer string, tp int, env map[string]string, extra ...string) *ServerProfile {
	return &ServerProfile{
		Program:       "python3",
		Module:        launchServerModule,
		ModelPath:     modelPath,
		TokenizerPath: tokenizer,
		TP:            tp,
		Quantization:  "fp8",
		Env:           env,
		ExtraArgs:     extra,
	}
}

func defaultProfiles() map[string]Profile {
	return map[string]Profile{
		"GROK1": {
			Server: serverProfile(
				"/data/models/huggingface/hub/models--amd--grok-1-W4A8KV8/snapshots/f47a2b93f0215b8bb156e817a2a08fc93fffdbaa/",
				"Xenova/grok-1-tokenizer", 8,
				map[string]string{"RCCL_MSCCL_ENABLE": "0", "SGLANG_USE_AITER": "1", "SGLANG_INT4_WEIGHT": "1"},
				"--mem-fraction-static", "0.5",
			),
		},
		"GROK1-INT4": {
			Client: clientProfile("1024", grok1Tokenizer, "online-GROK1.jsonl"),
		},
		"GROK1-FP8": {
			Client: clientProfile("1024", grok1Tokenizer, "online-GROK1-FP8.jsonl"),
		},
		"GROK2": {
			Client: clientProfile("8192", grok2Tokenizer, "online-GROK2.jsonl"),
			Server: serverProfile("/data2/grok-2/", grok2Tokenizer, 8,
				map[string]string{
					"RCCL_MSCCL_ENABLE":               "0",
					"SGLANG_USE_AITER":                "1",
					"SGLANG_INT4_WEIGHT":              "0",
					"SGLANG_ROCM_DISABLE_LINEARQUANT": "1",
				},
			),
		},
		"GROK2.8T": {
			Server: serverProfile("/dockerx/data/models/dummy_grok_2t/", "/dockerx/data/grok-2/tokenizer.tok.json", 8,
				map[string]string{"RCCL_MSCCL_ENABLE": "0", "SGLANG_USE_AITER": "0", "SGLANG_INT4_WEIGHT": "0"},
				"--load-format", "dummy",
			),
		},
		"LLAMA3.1-70B": {
			Server: serverProfile("amd/Llama-3.1-70B-Instruct-FP8-KV", "", 8,
				map[string]string{"RCCL_MSCCL_ENABLE": "1"},
				"--cuda-graph-max-bs", "1024", "--mem-fraction-static", "0.6",
			),
		},
		"LLAMA3.1-8B": {
			Server: serverProfile("amd/Llama-3.1-8B-Instruct-FP8-KV", "", 1,
				map[string]string{"RCCL_MSCCL_ENABLE": "1"},
				"--cuda-graph-max-bs", "1024", "--mem-fraction-static", "0.6",
			),
		},
	}
}
