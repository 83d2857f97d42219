/*
Copyright 2025 The Kubernator Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command kubernator is the entry point from spec.md §6: it parses the
// `dump`/`apply` CLI surface, builds the logger and Kubernetes client,
// walks the target directory tree executing each kubernator.yaml it
// finds, and runs the reconciliation pass in the mode the command
// selects. Grounded on cmd/api-syncagent/main.go's
// parse-flags/validate/build-logger/run(ctx, log, opts) shape in the
// teacher repository.
package main

import (
	stdcontext "context"
	"fmt"
	golog "log"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/kubernator-io/kubernator/internal/cache"
	ctxframe "github.com/kubernator-io/kubernator/internal/context"
	"github.com/kubernator-io/kubernator/internal/dump"
	"github.com/kubernator-io/kubernator/internal/logging"
	"github.com/kubernator-io/kubernator/internal/options"
	"github.com/kubernator-io/kubernator/internal/plugin"
	"github.com/kubernator-io/kubernator/internal/plugins/command"
	"github.com/kubernator-io/kubernator/internal/reconcile"
	"github.com/kubernator-io/kubernator/internal/schema"
	"github.com/kubernator-io/kubernator/internal/version"
	"github.com/kubernator-io/kubernator/internal/walker"
)

func main() {
	opts := options.NewDefaultOptions()
	opts.AddPFlags(pflag.CommandLine)
	pflag.Parse()

	if err := opts.ParsePositional(pflag.Args()); err != nil {
		golog.Fatalf("Invalid command line: %v", err)
	}
	if err := opts.Validate(); err != nil {
		golog.Fatalf("Invalid command line: %v", err)
	}

	log, err := logging.New(logging.Options{
		Format:  logging.Format(opts.LogFormat),
		Level:   logging.Level(opts.Verbosity),
		LogFile: opts.LogFile,
	})
	if err != nil {
		golog.Fatalf("Failed to build logger: %v", err)
	}
	sugar := log.Sugar()

	if err := run(stdcontext.Background(), sugar, &opts); err != nil {
		sugar.Fatalw("kubernator failed", zap.Error(err))
	}
}

func run(ctx stdcontext.Context, log *zap.SugaredLogger, opts *options.Options) error {
	v := version.NewAppVersion()
	log.Infow("Starting kubernator", "version", v.GitVersion, "command", opts.Command, "path", opts.RootPath)

	restConfig, err := loadKubeconfig()
	if err != nil {
		return fmt.Errorf("load kubeconfig: %w", err)
	}

	dynamicClient, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return fmt.Errorf("build dynamic client: %w", err)
	}

	discoveryClient, err := discovery.NewDiscoveryClientForConfig(restConfig)
	if err != nil {
		return fmt.Errorf("build discovery client: %w", err)
	}

	registry := schema.NewRegistry()
	if err := populateRegistryFromCluster(ctx, discoveryClient, dynamicClient, registry); err != nil {
		return fmt.Errorf("build resource definition registry: %w", err)
	}

	gitCache, err := cache.NewGitCache()
	if err != nil {
		return fmt.Errorf("build git cache: %w", err)
	}

	absRoot, err := absolutePath(opts.RootPath)
	if err != nil {
		return fmt.Errorf("resolve root path %q: %w", opts.RootPath, err)
	}

	rootFrame := ctxframe.NewRoot()
	w := walker.New(os.DirFS("/"), log, rootFrame, absRoot)

	collector := newResourceCollector(dynamicClient, registry)
	command.Bind(dynamicClient, registry, collector.Append)

	if err := w.RegisterPlugin(collector); err != nil {
		return fmt.Errorf("register resource collector: %w", err)
	}

	pluginRegistry := func(name string) (plugin.Factory, bool) { return plugin.Lookup(name) }
	interpreter := walker.DefaultInterpreter(pluginRegistry, gitCache)

	if err := w.Run(interpreter); err != nil {
		return fmt.Errorf("walk %s: %w", absRoot, err)
	}

	if len(collector.errs) > 0 {
		return fmt.Errorf("loading manifests: %w", collector.errs[0])
	}

	engine := reconcile.New(log)
	switch opts.Command {
	case options.CommandDump:
		engine.Mode = reconcile.ModeDump
	default:
		engine.Mode = reconcile.ModeApply
	}

	if err := engine.Run(ctx, collector.resources); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	log.Infow("Reconciliation complete",
		"created", engine.Counters.Created,
		"patched", engine.Counters.Patched,
		"deleted", engine.Counters.Deleted,
	)

	if opts.Command == options.CommandDump {
		return writeDump(opts, &engine.Dump)
	}

	return nil
}

func writeDump(opts *options.Options, sink *dump.Sink) error {
	f, err := os.Create(opts.DumpFile)
	if err != nil {
		return fmt.Errorf("open dump file %q: %w", opts.DumpFile, err)
	}
	defer f.Close()

	return dump.Write(f, dump.Format(opts.Output), sink)
}

func loadKubeconfig() (*rest.Config, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, nil).ClientConfig()
}

// populateRegistryFromCluster fetches the cluster's OpenAPI v2 document
// and every registered CustomResourceDefinition, building the complete
// ResourceDef registry a walk needs before it can validate or reconcile
// anything, per spec.md §4.1.
func populateRegistryFromCluster(ctx stdcontext.Context, discoveryClient *discovery.DiscoveryClient, dynamicClient dynamic.Interface, registry *schema.Registry) error {
	raw, err := discoveryClient.RESTClient().Get().AbsPath("/openapi/v2").DoRaw(ctx)
	if err != nil {
		return fmt.Errorf("fetch OpenAPI document: %w", err)
	}
	if err := registry.BuildFromOpenAPI(raw); err != nil {
		return fmt.Errorf("build registry from OpenAPI document: %w", err)
	}

	crdGVR := apiextensionsv1.SchemeGroupVersion.WithResource("customresourcedefinitions")
	crdList, err := dynamicClient.Resource(crdGVR).List(ctx, metav1.ListOptions{})
	if err != nil {
		// A cluster that somehow lacks the apiextensions API contributes
		// no CRDs; built-in kinds still resolve from the OpenAPI document
		// fetched above.
		return nil
	}

	for i := range crdList.Items {
		crd := &apiextensionsv1.CustomResourceDefinition{}
		if err := runtime.DefaultUnstructuredConverter.FromUnstructured(crdList.Items[i].UnstructuredContent(), crd); err != nil {
			return fmt.Errorf("decode CRD %s: %w", crdList.Items[i].GetName(), err)
		}
		if err := registry.AddCRD(crd); err != nil {
			return fmt.Errorf("register CRD %s: %w", crdList.Items[i].GetName(), err)
		}
	}

	return nil
}
