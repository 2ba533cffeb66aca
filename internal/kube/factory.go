package kube

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

// ClientMode represents the mode for creating Kubernetes clients
type ClientMode string

const (
	// InClusterMode uses in-cluster configuration (ServiceAccount)
	InClusterMode ClientMode = "incluster"
	// KubeconfigMode uses kubeconfig file
	KubeconfigMode ClientMode = "kubeconfig"
)

// NewClient builds a clientset for the pod-list resolver.
func NewClient(logger *zap.Logger, mode ClientMode, kubeconfigPath string) (kubernetes.Interface, error) {
	config, err := restConfig(logger, mode, kubeconfigPath)
	if err != nil {
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes clientset: %w", err)
	}

	return clientset, nil
}

func restConfig(logger *zap.Logger, mode ClientMode, kubeconfigPath string) (*rest.Config, error) {
	switch mode {
	case InClusterMode:
		logger.Info("Creating in-cluster Kubernetes client")
		config, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create in-cluster config: %w", err)
		}
		return config, nil
	case KubeconfigMode:
		path, err := resolveKubeconfigPath(kubeconfigPath)
		if err != nil {
			return nil, err
		}
		logger.Info("Creating kubeconfig-based Kubernetes client", zap.String("kubeconfig", path))
		config, err := clientcmd.BuildConfigFromFlags("", path)
		if err != nil {
			return nil, fmt.Errorf("failed to build config from kubeconfig %s: %w", path, err)
		}
		return config, nil
	default:
		return nil, fmt.Errorf("unsupported client mode: %s", mode)
	}
}

// resolveKubeconfigPath falls back to $KUBECONFIG, then ~/.kube/config.
func resolveKubeconfigPath(kubeconfigPath string) (string, error) {
	if kubeconfigPath == "" {
		if kubeconfig := os.Getenv("KUBECONFIG"); kubeconfig != "" {
			kubeconfigPath = kubeconfig
		} else if home := homedir.HomeDir(); home != "" {
			kubeconfigPath = filepath.Join(home, ".kube", "config")
		} else {
			return "", fmt.Errorf("no kubeconfig path provided and unable to determine default location")
		}
	}

	if _, err := os.Stat(kubeconfigPath); os.IsNotExist(err) {
		return "", fmt.Errorf("kubeconfig file does not exist: %s", kubeconfigPath)
	}

	return kubeconfigPath, nil
}

// ValidateConnection checks that the API server is reachable.
func ValidateConnection(logger *zap.Logger, client kubernetes.Interface) error {
	version, err := client.Discovery().ServerVersion()
	if err != nil {
		return fmt.Errorf("failed to connect to Kubernetes API: %w", err)
	}

	logger.Info("Kubernetes connection validated",
		zap.String("gitVersion", version.GitVersion),
		zap.String("platform", version.Platform),
	)

	return nil
}
