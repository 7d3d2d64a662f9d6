package bot

import (
	"fmt"

	"github.com/nexanet/configbot/internal/configs"
	"github.com/nexanet/configbot/internal/format"
	"github.com/nexanet/configbot/internal/models"
	"github.com/nexanet/configbot/internal/notify"
)

const (
	configsPerPage  = 10
	usersPerPage    = 10
	paymentsPerPage = 5
	deleteListLimit = 20
	buttonNameMax   = 30
)

var categoryIcons = map[string]string{
	"Safaricom": "🟢",
	"Airtel":    "🔴",
	"Telkom":    "🟡",
	"Other":     "🔵",
}

func mainMenu() [][]notify.Button {
	return [][]notify.Button{
		{button("📱 Get Configs", actionCategorySelect), button("💳 Make Payment", actionMakePayment)},
		{button("📊 My Status", actionMyStatus), button("❓ Help", actionHelp)},
	}
}

func adminMenu() [][]notify.Button {
	return [][]notify.Button{
		{button("📊 Statistics", actionAdminStats), button("👥 View Users", actionAdminUsers)},
		{button("💳 Payment Approvals", actionAdminPayments), button("📁 Upload Config", actionAdminUpload)},
		{button("🗑️ Delete Config", actionAdminDelete), button("📢 Broadcast", actionAdminBroadcast)},
		{button("🔄 Expire User", actionAdminExpire), button("🏠 Main Menu", actionMenu)},
	}
}

func backTo(label, action string) []notify.Button {
	return []notify.Button{button(label, action)}
}

func backToMenu() []notify.Button  { return backTo("🏠 Main Menu", actionMenu) }
func backToAdmin() []notify.Button { return backTo("⬅️ Back to Admin", actionAdmin) }

// categoryMenu lays categories out two per row under prefix.
func categoryMenu(prefix string, icons bool, back []notify.Button) [][]notify.Button {
	var rows [][]notify.Button
	var row []notify.Button
	for _, c := range configs.Categories {
		label := c
		if icons {
			label = categoryIcons[c] + " " + c
		}
		row = append(row, button(label, prefix+c))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return append(rows, back)
}

func configsKeyboard(category string, files []models.StoredFile, page format.Page) [][]notify.Button {
	var rows [][]notify.Button
	for _, f := range files[page.Start:page.End] {
		rows = append(rows, []notify.Button{
			button("📥 "+format.Truncate(f.OriginalFilename, buttonNameMax), fmt.Sprintf("%s%d", prefixDownload, f.ConfigID)),
		})
	}
	var nav []notify.Button
	if page.HasPrev() {
		nav = append(nav, button("⬅️ Previous", configsPageAction(category, page.Index-1)))
	}
	if page.HasNext() {
		nav = append(nav, button("Next ➡️", configsPageAction(category, page.Index+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	return append(rows, backTo("⬅️ Back to Categories", actionCategorySelect))
}

func configsPageAction(category string, index int) string {
	return fmt.Sprintf("%s%d_%s", prefixConfigsPage, index, category)
}

// pager renders Prev/Next for an admin list whose page actions are prefix<index>.
func pager(prefix string, page format.Page) []notify.Button {
	var nav []notify.Button
	if page.HasPrev() {
		nav = append(nav, button("⬅️ Prev", fmt.Sprintf("%s%d", prefix, page.Index-1)))
	}
	if page.HasNext() {
		nav = append(nav, button("Next ➡️", fmt.Sprintf("%s%d", prefix, page.Index+1)))
	}
	return nav
}
