package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
)

// schema constrains configuration written in CUE.
const schema = `
#Duration: =~"^([0-9]+(\\.[0-9]+)?(ns|us|ms|s|m|h))+$"

#Engine: "full_rewrite" | "backup_swap" | "kv"

#Collection: {
	engine?:        #Engine
	file_name?:     string & !=""
	heavy_field?:   string & !=""
	debounce?:      #Duration
	guard_timeout?: #Duration
	size_guard?:    bool
	min_size?:      int & >=0
	batch_size?:    int & >0
	settings?: {...}
}

#Config: {
	data_path: string | *"."
	account?:  string
	engine?:   #Engine
	kv?: {
		driver?: "sqlite" | "pebble"
		path?:   string
	}
	collections?: [string]: #Collection
}
`

// LoadCUE reads CUE configuration and checks it against the schema. path
// may name a single file or a directory holding a CUE package.
func LoadCUE(path string) (*Config, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("config file not found: %s", path)}
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if info.IsDir() {
		return loadCUEDir(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseCUE(path, data)
}

// ParseCUE compiles CUE source, unifies it with the schema and decodes the
// concrete result.
func ParseCUE(filename string, data []byte) (*Config, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, cueError(ErrCodeParse, err)
	}
	return decodeCUE(ctx, value)
}

func loadCUEDir(dir string) (*Config, error) {
	ctx := cuecontext.New()
	insts := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(insts) == 0 {
		return nil, &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("no CUE package in %s", dir)}
	}
	inst := insts[0]
	if inst.Err != nil {
		return nil, cueError(ErrCodeParse, inst.Err)
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, cueError(ErrCodeParse, err)
	}
	return decodeCUE(ctx, value)
}

func decodeCUE(ctx *cue.Context, value cue.Value) (*Config, error) {
	schemaVal := ctx.CompileString(schema, cue.Filename("schema.cue"))
	if err := schemaVal.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	unified := schemaVal.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(ErrCodeSchema, err)
	}

	raw, err := unified.MarshalJSON()
	if err != nil {
		return nil, cueError(ErrCodeSchema, err)
	}

	cfg := Default()
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, &Error{Code: ErrCodeSchema, Message: err.Error()}
	}
	if cfg.Collections == nil {
		cfg.Collections = map[string]CollectionConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// cueError converts the first CUE error into an Error with its position.
func cueError(code string, err error) *Error {
	e := &Error{Code: code, Message: err.Error()}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		e.Message = errs[0].Error()
		e.Pos = errs[0].Position()
	}
	return e
}
