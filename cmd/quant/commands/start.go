package commands

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// backendCmd represents the backend command group
var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "백엔드 서버 관련 명령어",
	Long:  `백엔드 서버 시작 등의 명령어를 제공합니다.`,
}

// killProcessOnPort kills any process listening on the specified port
func killProcessOnPort(port string) error {
	// lsof로 포트 사용 중인 PID 찾기
	cmd := exec.Command("lsof", "-ti", fmt.Sprintf(":%s", port))
	output, err := cmd.Output()
	if err != nil {
		// 에러면 포트가 사용 중이 아님
		return nil
	}

	for _, pidStr := range strings.Fields(string(output)) {
		pid, err := strconv.Atoi(pidStr)
		if err != nil {
			continue
		}

		fmt.Printf("🔄 기존 프로세스 종료 중 (PID: %d, Port: %s)...\n", pid, port)
		if err := exec.Command("kill", "-9", pidStr).Run(); err != nil {
			return fmt.Errorf("프로세스 종료 실패 (PID: %d): %w", pid, err)
		}
	}

	return nil
}

// backendStartCmd restarts the API server on a fixed port
var backendStartCmd = &cobra.Command{
	Use:   "start",
	Short: "백엔드 API 서버 재시작 (포트 8089)",
	Long: `기존 프로세스가 실행 중이면 종료 후 API 서버를 시작합니다.

Example:
  go run ./cmd/quant backend start
  go run ./cmd/quant backend start --port 8090 --with-scheduler`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := killProcessOnPort(backendPort); err != nil {
			return err
		}
		apiPort = backendPort
		return runAPIServer(cmd, args)
	},
}

var backendPort string

func init() {
	rootCmd.AddCommand(backendCmd)

	backendCmd.AddCommand(backendStartCmd)
	backendStartCmd.Flags().StringVar(&backendPort, "port", "8089", "API 서버 포트")
	backendStartCmd.Flags().BoolVar(&apiWithScheduler, "with-scheduler", false, "레짐 갱신 스케줄러 함께 실행")
}
