// Package cli реализует инструмент командной строки jobpool.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с admin API процесса
// jobpool. Работает через HTTP, не импортирует внутренние пакеты
// системы. Используется для постановки задач в очередь, ожидания их
// результатов и управления пулами.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для admin API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ErrorResponse) и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8090")
//	job, err := client.SubmitJob("default", cli.TaskRequest{Method: "echo"}, "cli")
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (encoding/json) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: jobpool-cli job submit default --method echo --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - job: submit, yield
//   - pool: status, suspend, resume
//
// Каждая группа создаётся через фабричную функцию (NewJobCmd, NewPoolCmd),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
