package report

// Fixed replies.
const (
	NoPermission        = "无权限操作。"
	AdminOnly           = "仅管理员可操作。"
	AdminOnlyView       = "仅管理员可查看。"
	AlreadyActive       = "当前已有活跃周期，请先‘下课’。"
	NoActiveCycle       = "当前没有活跃周期。"
	NoActiveCycleHint   = "没有活跃周期，请先‘上课’。"
	NothingToUndo       = "无记录可撤销。"
	AlreadyCarried      = "已记录结余，勿重复操作。"
	InvalidAmount       = "金额格式错误。"
	CarryOverUsage      = "格式: 结余 +金额 或 结余 -金额"
	OperatorUsage       = "格式: 回复某人消息或使用 @username。"
	RolledBack          = "处理失败，数据已回滚。"
	InternalError       = "发生未知内部错误，请联系管理员检查日志。"
	EditFailed          = "更新账单详情失败，请重试。"
	ImportFailed        = "导入结余失败！"
	ImportNoCycle       = "失败：没有活跃周期。"
	ImportAlreadyExists = "结余已存在，请勿重复操作。"
	DetailsFailed       = "加载账单详情失败。"
)

// UnknownUser is the reply when an "@name" target has never spoken in the group.
func UnknownUser(name string) Message {
	return Plain("用户 " + name + " 未在群内发言过。")
}

// Help returns the command reference.
func Help() Message {
	return Message{Text: helpText, Mode: ModeHTML}
}

const helpText = "📖 <b>记账机器人 - 快速入门</b>\n\n" +
	"<b>三步搞定记账:</b>\n" +
	"1️⃣ 发送 <code>上课</code> → 开启新账本\n" +
	"2️⃣ 开始记账 → <code>+1000</code> (入款), <code>-500</code> (下发)\n" +
	"3️⃣ 发送 <code>下课</code> → 结算本日账目\n\n" +
	"--- <b>所有指令</b> ---\n\n" +
	"<b>记账操作</b> (管理员/操作员)\n" +
	"☀️ <code>上课</code> → 开始新一轮记账\n" +
	"🌙 <code>下课</code> → 结束本轮, 生成总结\n" +
	"🟢 <code>+100</code> → 记录一笔<b>入款</b>\n" +
	"🔴 <code>-50</code>  → 记录一笔<b>下发</b>\n" +
	"💰 <code>结余 +1000</code> → 录入上一轮的结余\n" +
	"↩️ <code>撤销</code> → 删掉<b>最后一条</b>记录\n\n" +
	"<b>管理操作</b> (仅管理员)\n" +
	"➕ <code>设置操作员</code> → (回复/<code>@</code>) 设为记账员\n" +
	"➖ <code>删除操作员</code> → (回复/<code>@</code>) 取消记账员\n" +
	"👥 <code>当前操作员</code> → 查看记账员列表\n\n" +
	"💡 <b>小提示:</b>\n" +
	" ▸ 所有记账都可加备注, 如: <code>+5000 张三</code>\n" +
	" ▸ 每个群组的账本和人员都完全独立。"
