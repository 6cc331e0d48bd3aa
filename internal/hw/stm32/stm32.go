//go:build tinygo && stm32f4

// Package stm32 is the register backend for the real display hardware:
// STM32F4 core, NOR flash on SPI1, the panel on the FSMC 8080 bus, BLE on
// USART1 and the motor controller on USART2. Every wait on an external bit
// is bounded by a counter; exceeded deadlines return best-effort.
package stm32

import (
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"

	"device/arm"
	"device/stm32"

	"github.com/darvell/open-bc280-firmware-sub002/internal/fw"
	"github.com/darvell/open-bc280-firmware-sub002/internal/hw"
	"github.com/darvell/open-bc280-firmware-sub002/internal/uart"
)

/*
   clock settings
   +-------------+--------+
   | HSE         | 8mhz   |
   | SYSCLK      | 168mhz |
   | HCLK        | 168mhz |
   | APB2(PCLK2) | 84mhz  |
   | APB1(PCLK1) | 42mhz  |
   +-------------+--------+
*/
const (
	hseStartupTimeout = 0x0500
	pllM              = 8
	pllN              = 336
	pllP              = 2
	pllQ              = 7

	busWaitLimit = 100_000 // bounded spin for TXE/RXNE/EOC style flags
)

// FSMC bank 1, A16 wired to the panel's D/C line: command at the base
// address, data with A16 high.
const (
	lcdCmdAddr  = 0x60000000
	lcdDataAddr = 0x60020000
)

// Devices owns the initialized register-backed endpoints.
type Devices struct {
	SPI       SPI
	LCD       LCD
	BLE       UART
	Motor     UART
	ADC       ADC
	Buttons   Buttons
	Backlight Backlight
	Ticker    Ticker
	Sys       Sys
	Mem       Mem
}

// Init brings up clocks, pins and peripherals and returns the endpoints.
func Init() *Devices {
	initClocks()
	initGPIO()
	initFSMC()
	initSPI1()
	initUSARTs()
	initADC1()
	initTIM3()
	initPWM()
	initIWDG()

	d := &Devices{}
	d.BLE.reg = stm32.USART1
	d.Motor.reg = stm32.USART2
	return d
}

// Board packs the endpoints for the firmware core.
func (d *Devices) Board() fw.Board {
	return fw.Board{
		SPI:       &d.SPI,
		LCD:       &d.LCD,
		UART:      [2]hw.UART{&d.BLE, &d.Motor},
		ADC:       &d.ADC,
		Buttons:   &d.Buttons,
		Backlight: &d.Backlight,
		Ticker:    &d.Ticker,
		Sys:       &d.Sys,
		Mem:       &d.Mem,
	}
}

// Attach enables the receive interrupts and routes them into the firmware.
func (d *Devices) Attach(f *fw.Firmware) {
	bleInt := interrupt.New(stm32.IRQ_USART1, func(interrupt.Interrupt) {
		if stm32.USART1.SR.HasBits(stm32.USART_SR_RXNE) {
			f.RxISR(uart.PortBLE, byte(stm32.USART1.DR.Get()))
		}
	})
	motorInt := interrupt.New(stm32.IRQ_USART2, func(interrupt.Interrupt) {
		if stm32.USART2.SR.HasBits(stm32.USART_SR_RXNE) {
			f.RxISR(uart.PortMotor, byte(stm32.USART2.DR.Get()))
		}
	})

	stm32.USART1.CR1.SetBits(stm32.USART_CR1_RXNEIE)
	stm32.USART2.CR1.SetBits(stm32.USART_CR1_RXNEIE)
	bleInt.Enable()
	motorInt.Enable()
}

func initClocks() {
	stm32.RCC.CR.SetBits(stm32.RCC_CR_HSION)
	for !stm32.RCC.CR.HasBits(stm32.RCC_CR_HSIRDY) {
	}

	stm32.RCC.CFGR.Set(0)
	stm32.RCC.CR.ClearBits(stm32.RCC_CR_HSEON | stm32.RCC_CR_CSSON | stm32.RCC_CR_PLLON)
	stm32.RCC.CIR.Set(0)

	// Enable HSE with a bounded wait; fall back to HSI when the crystal
	// never comes up.
	stm32.RCC.CR.SetBits(stm32.RCC_CR_HSEON)
	var startup uint32
	for !stm32.RCC.CR.HasBits(stm32.RCC_CR_HSERDY) && startup < hseStartupTimeout {
		startup++
	}
	pllSrc := uint32(1) // HSE
	if !stm32.RCC.CR.HasBits(stm32.RCC_CR_HSERDY) {
		pllSrc = 0 // HSI/2 path, keeps the board alive on a dead crystal
	}

	stm32.RCC.APB1ENR.SetBits(stm32.RCC_APB1ENR_PWREN)
	stm32.PWR.CR.SetBits(stm32.PWR_CR_VOS_Msk)

	// HCLK = SYSCLK, PCLK2 = HCLK/2, PCLK1 = HCLK/4
	stm32.RCC.CFGR.SetBits(stm32.RCC_CFGR_HPRE_Div1 << stm32.RCC_CFGR_HPRE_Pos)
	stm32.RCC.CFGR.SetBits(stm32.RCC_CFGR_PPRE2_Div2 << stm32.RCC_CFGR_PPRE2_Pos)
	stm32.RCC.CFGR.SetBits(stm32.RCC_CFGR_PPRE1_Div4 << stm32.RCC_CFGR_PPRE1_Pos)

	stm32.RCC.PLLCFGR.Set(pllM | (pllN << stm32.RCC_PLLCFGR_PLLN_Pos) |
		(((pllP >> 1) - 1) << stm32.RCC_PLLCFGR_PLLP_Pos) |
		(pllSrc << stm32.RCC_PLLCFGR_PLLSRC_Pos) |
		(pllQ << stm32.RCC_PLLCFGR_PLLQ_Pos))
	stm32.RCC.CR.SetBits(stm32.RCC_CR_PLLON)
	for !stm32.RCC.CR.HasBits(stm32.RCC_CR_PLLRDY) {
	}

	stm32.FLASH.ACR.Set(stm32.FLASH_ACR_ICEN | stm32.FLASH_ACR_DCEN |
		(5 << stm32.FLASH_ACR_LATENCY_Pos))

	stm32.RCC.CFGR.ClearBits(stm32.RCC_CFGR_SW_Msk)
	stm32.RCC.CFGR.SetBits(stm32.RCC_CFGR_SW_PLL << stm32.RCC_CFGR_SW_Pos)
	for (stm32.RCC.CFGR.Get() & stm32.RCC_CFGR_SWS_Msk) !=
		(stm32.RCC_CFGR_SWS_PLL << stm32.RCC_CFGR_SWS_Pos) {
	}
}

// pin helpers: mode 0 input, 1 output, 2 alternate, 3 analog
func pinMode(port *stm32.GPIO_Type, pin, mode uint32) {
	port.MODER.ReplaceBits(mode, 0x3, uint8(pin*2))
}

func pinPullUp(port *stm32.GPIO_Type, pin uint32) {
	port.PUPDR.ReplaceBits(1, 0x3, uint8(pin*2))
}

func pinAF(port *stm32.GPIO_Type, pin, af uint32) {
	pinMode(port, pin, 2)
	if pin < 8 {
		port.AFRL.ReplaceBits(af, 0xF, uint8(pin*4))
	} else {
		port.AFRH.ReplaceBits(af, 0xF, uint8((pin-8)*4))
	}
	// high speed
	port.OSPEEDR.ReplaceBits(3, 0x3, uint8(pin*2))
}

func initGPIO() {
	stm32.RCC.AHB1ENR.SetBits(stm32.RCC_AHB1ENR_GPIOAEN |
		stm32.RCC_AHB1ENR_GPIOBEN | stm32.RCC_AHB1ENR_GPIOCEN |
		stm32.RCC_AHB1ENR_GPIODEN | stm32.RCC_AHB1ENR_GPIOEEN)

	// buttons PC0..PC4, active low with pull-ups
	for pin := uint32(0); pin <= 4; pin++ {
		pinMode(stm32.GPIOC, pin, 0)
		pinPullUp(stm32.GPIOC, pin)
	}

	// BLE reset and straps
	pinMode(stm32.GPIOA, 11, 1)
	pinMode(stm32.GPIOA, 12, 1)
	pinMode(stm32.GPIOC, 12, 1)

	// LCD reset pair, panel held out of reset
	pinMode(stm32.GPIOB, 0, 1)
	pinMode(stm32.GPIOB, 1, 1)
	stm32.GPIOB.BSRR.Set(1 << 0)
	stm32.GPIOB.BSRR.Set(1 << 1)

	// battery divider on PA0, analog
	pinMode(stm32.GPIOA, 0, 3)

	// USART1 PA9/PA10, USART2 PA2/PA3
	pinAF(stm32.GPIOA, 9, 7)
	pinAF(stm32.GPIOA, 10, 7)
	pinAF(stm32.GPIOA, 2, 7)
	pinAF(stm32.GPIOA, 3, 7)

	// SPI1 PA5/PA6/PA7, chip select PA4 as plain output, idle high
	pinMode(stm32.GPIOA, 4, 1)
	stm32.GPIOA.BSRR.Set(1 << 4)
	pinAF(stm32.GPIOA, 5, 5)
	pinAF(stm32.GPIOA, 6, 5)
	pinAF(stm32.GPIOA, 7, 5)

	// backlight PWM on PA8, TIM1 CH1
	pinAF(stm32.GPIOA, 8, 1)
}

// fsmcPins is the D0..D15 + NOE/NWE/NE1/A16 routing on ports D and E.
var fsmcPinsD = []uint32{0, 1, 4, 5, 7, 8, 9, 10, 11, 14, 15}
var fsmcPinsE = []uint32{7, 8, 9, 10, 11, 12, 13, 14, 15}

func initFSMC() {
	stm32.RCC.AHB3ENR.SetBits(stm32.RCC_AHB3ENR_FSMCEN)
	for _, pin := range fsmcPinsD {
		pinAF(stm32.GPIOD, pin, 12)
	}
	for _, pin := range fsmcPinsE {
		pinAF(stm32.GPIOE, pin, 12)
	}

	// Bank 1: SRAM-like 16-bit, write enabled; timings sized for the
	// panel controller's 66 ns cycle.
	stm32.FSMC.BCR1.Set(stm32.FSMC_BCR1_MBKEN | stm32.FSMC_BCR1_WREN |
		(1 << stm32.FSMC_BCR1_MWID_Pos))
	stm32.FSMC.BTR1.Set((2 << stm32.FSMC_BTR1_ADDSET_Pos) |
		(6 << stm32.FSMC_BTR1_DATAST_Pos))
}

func initSPI1() {
	stm32.RCC.APB2ENR.SetBits(stm32.RCC_APB2ENR_SPI1EN)
	// master, fPCLK/8, mode 0, software NSS
	stm32.SPI1.CR1.Set(stm32.SPI_CR1_MSTR | stm32.SPI_CR1_SSM | stm32.SPI_CR1_SSI |
		(2 << stm32.SPI_CR1_BR_Pos))
	stm32.SPI1.CR1.SetBits(stm32.SPI_CR1_SPE)
}

func initUSARTs() {
	stm32.RCC.APB2ENR.SetBits(stm32.RCC_APB2ENR_USART1EN)
	stm32.RCC.APB1ENR.SetBits(stm32.RCC_APB1ENR_USART2EN)

	// 9600 8N1 on both ports. USART1 runs from PCLK2 (84 MHz), USART2
	// from PCLK1 (42 MHz).
	stm32.USART1.BRR.Set(84_000_000 / 9600)
	stm32.USART2.BRR.Set(42_000_000 / 9600)
	stm32.USART1.CR1.Set(stm32.USART_CR1_UE | stm32.USART_CR1_TE | stm32.USART_CR1_RE)
	stm32.USART2.CR1.Set(stm32.USART_CR1_UE | stm32.USART_CR1_TE | stm32.USART_CR1_RE)
}

func initADC1() {
	stm32.RCC.APB2ENR.SetBits(stm32.RCC_APB2ENR_ADC1EN)
	// 12-bit, single conversion of channel 0, right aligned
	stm32.ADC1.SQR3.Set(0)
	stm32.ADC1.SMPR2.Set(7 << 0) // longest sample time on ch0
	stm32.ADC1.CR2.SetBits(stm32.ADC_CR2_ADON)
}

func initTIM3() {
	stm32.RCC.APB1ENR.SetBits(stm32.RCC_APB1ENR_TIM3EN)
	// TIM3 clock is 2x PCLK1 = 84 MHz; 200 Hz update
	stm32.TIM3.PSC.Set(8400 - 1) // 10 kHz counter
	stm32.TIM3.ARR.Set(50 - 1)   // 5 ms
	stm32.TIM3.EGR.Set(stm32.TIM_EGR_UG)
	stm32.TIM3.SR.Set(0)
	stm32.TIM3.CR1.Set(stm32.TIM_CR1_CEN)
}

func initPWM() {
	stm32.RCC.APB2ENR.SetBits(stm32.RCC_APB2ENR_TIM1EN)
	// TIM1 clock 168 MHz; 1 kHz PWM with a 0..100 compare range
	stm32.TIM1.PSC.Set(1680 - 1)
	stm32.TIM1.ARR.Set(100 - 1)
	stm32.TIM1.CCMR1_Output.Set(6 << stm32.TIM_CCMR1_Output_OC1M_Pos) // PWM mode 1
	stm32.TIM1.CCER.Set(stm32.TIM_CCER_CC1E)
	stm32.TIM1.BDTR.Set(stm32.TIM_BDTR_MOE)
	stm32.TIM1.CCR1.Set(0)
	stm32.TIM1.CR1.Set(stm32.TIM_CR1_CEN)
}

func initIWDG() {
	// ~2 s timeout from the 32 kHz LSI
	stm32.IWDG.KR.Set(0x5555)
	stm32.IWDG.PR.Set(4) // /64
	stm32.IWDG.RLR.Set(1000)
	stm32.IWDG.KR.Set(0xCCCC)
}

// SPI is the NOR flash port on SPI1 with PA4 as chip select.
type SPI struct{}

func (SPI) Select()   { stm32.GPIOA.BSRR.Set(1 << (4 + 16)) }
func (SPI) Deselect() { stm32.GPIOA.BSRR.Set(1 << 4) }

func (SPI) Transfer(b byte) byte {
	for i := 0; !stm32.SPI1.SR.HasBits(stm32.SPI_SR_TXE); i++ {
		if i > busWaitLimit {
			return 0
		}
	}
	stm32.SPI1.DR.Set(uint32(b))
	for i := 0; !stm32.SPI1.SR.HasBits(stm32.SPI_SR_RXNE); i++ {
		if i > busWaitLimit {
			return 0
		}
	}
	return byte(stm32.SPI1.DR.Get())
}

// LCD is the panel controller on FSMC bank 1.
type LCD struct{}

func (LCD) WriteCmd(c byte) {
	(*volatile.Register16)(unsafe.Pointer(uintptr(lcdCmdAddr))).Set(uint16(c))
}

func (LCD) WriteData(d byte) {
	(*volatile.Register16)(unsafe.Pointer(uintptr(lcdDataAddr))).Set(uint16(d))
}

func (LCD) WriteData16(d uint16) {
	(*volatile.Register16)(unsafe.Pointer(uintptr(lcdDataAddr))).Set(d)
}

// UART wraps one USART's data path. Receive normally arrives through the
// RXNE interrupt; ReadByte is the polled fallback the ring driver uses.
type UART struct {
	reg *stm32.USART_Type
}

func (u *UART) WriteByte(b byte) {
	for i := 0; !u.reg.SR.HasBits(stm32.USART_SR_TXE); i++ {
		if i > busWaitLimit {
			return
		}
	}
	u.reg.DR.Set(uint32(b))
}

func (u *UART) ReadByte() (byte, bool) {
	if !u.reg.SR.HasBits(stm32.USART_SR_RXNE) {
		return 0, false
	}
	return byte(u.reg.DR.Get()), true
}

// ADC reads the battery divider on channel 0.
type ADC struct{}

func (ADC) ReadBattery() uint16 {
	stm32.ADC1.CR2.SetBits(stm32.ADC_CR2_SWSTART)
	for i := 0; !stm32.ADC1.SR.HasBits(stm32.ADC_SR_EOC); i++ {
		if i > busWaitLimit {
			return 0
		}
	}
	return uint16(stm32.ADC1.DR.Get() & 0xFFF)
}

// Buttons samples PC0..PC4, inverting the active-low inputs.
type Buttons struct{}

func (Buttons) Read() uint8 {
	return uint8(^stm32.GPIOC.IDR.Get()) & 0x1F
}

// Backlight drives TIM1 CH1 duty directly in percent.
type Backlight struct{}

func (Backlight) Set(percent uint8) {
	if percent > 100 {
		percent = 100
	}
	stm32.TIM1.CCR1.Set(uint32(percent))
}

// Ticker exposes TIM3's update flag for the polling timebase.
type Ticker struct{}

func (Ticker) Pending() bool {
	if !stm32.TIM3.SR.HasBits(stm32.TIM_SR_UIF) {
		return false
	}
	stm32.TIM3.SR.ClearBits(stm32.TIM_SR_UIF)
	return true
}

// Sys is reset and watchdog control.
type Sys struct{}

func (Sys) Reset()        { arm.SystemReset() }
func (Sys) FeedWatchdog() { stm32.IWDG.KR.Set(0xAAAA) }

// Mem provides checked access to the MCU address space for the debug
// protocol. Flash, SRAM, CCM and the peripheral window are accessible.
type Mem struct{}

var memRanges = [...]struct{ lo, hi uint32 }{
	{0x08000000, 0x08100000}, // flash
	{0x10000000, 0x10010000}, // CCM
	{0x20000000, 0x20020000}, // SRAM
	{0x40000000, 0x50080000}, // peripherals
	{0x60000000, 0x60040000}, // FSMC bank 1
	{0xE0000000, 0xE0100000}, // system control space
}

func memOK(addr, n uint32) bool {
	for _, r := range memRanges {
		if addr >= r.lo && addr+n <= r.hi {
			return true
		}
	}
	return false
}

func (Mem) Read32(addr uint32) (uint32, bool) {
	if addr&3 != 0 || !memOK(addr, 4) {
		return 0, false
	}
	return (*volatile.Register32)(unsafe.Pointer(uintptr(addr))).Get(), true
}

func (Mem) Write32(addr uint32, v uint32) bool {
	if addr&3 != 0 || !memOK(addr, 4) {
		return false
	}
	(*volatile.Register32)(unsafe.Pointer(uintptr(addr))).Set(v)
	return true
}

func (Mem) Read(addr uint32, p []byte) bool {
	if !memOK(addr, uint32(len(p))) {
		return false
	}
	for i := range p {
		p[i] = (*volatile.Register8)(unsafe.Pointer(uintptr(addr) + uintptr(i))).Get()
	}
	return true
}

func (Mem) Write(addr uint32, p []byte) bool {
	if !memOK(addr, uint32(len(p))) {
		return false
	}
	for i := range p {
		(*volatile.Register8)(unsafe.Pointer(uintptr(addr) + uintptr(i))).Set(p[i])
	}
	return true
}

// Exec jumps to a Thumb entry point. The odd address requirement is the
// Thumb bit; a successful jump does not return.
func (Mem) Exec(addr uint32) bool {
	if addr&1 == 0 || !memOK(addr&^1, 2) {
		return false
	}
	target := uintptr(addr)
	fn := *(*func())(unsafe.Pointer(&target))
	fn()
	return true
}
